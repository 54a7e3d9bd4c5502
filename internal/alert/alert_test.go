package alert_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/noisewatch/internal/alert"
	"github.com/MrWong99/noisewatch/pkg/types"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mutableSettings lets a test flip the snapshot between readings.
type mutableSettings struct {
	mu   sync.Mutex
	snap alert.Snapshot
	err  error
}

func (s *mutableSettings) Snapshot() (alert.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.err
}

func (s *mutableSettings) set(snap alert.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

func enabled() alert.Settings {
	return alert.StaticSettings(alert.Snapshot{NotificationsEnabled: true})
}

// feed evaluates n readings spaced by step, starting immediately, and returns
// the number of alerts fired.
func feed(e *alert.Engine, clk *fakeClock, n int, step time.Duration, loud float64, label types.NoiseLabel) (fired int, last alert.Decision) {
	for i := range n {
		if i > 0 {
			clk.Advance(step)
		}
		if d, ok := e.Evaluate(loud, label); ok {
			fired++
			last = d
		}
	}
	return fired, last
}

func TestEvaluate_NeutralFiresAfterFiveReadingsOverFiveSeconds(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	e := alert.New(enabled(), alert.WithClock(clk.Now))

	fired, d := feed(e, clk, 5, 1250*time.Millisecond, 75, types.LabelTalking)
	if fired != 1 {
		t.Fatalf("fired %d alerts, want 1", fired)
	}
	if d.Threshold != 70 || d.Class != alert.ClassNeutral {
		t.Errorf("decision = %+v, want neutral threshold 70", d)
	}

	// A sixth loud reading inside the cooldown must not fire again.
	clk.Advance(time.Second)
	if _, ok := e.Evaluate(75, types.LabelTalking); ok {
		t.Error("fired again within cooldown")
	}
}

func TestEvaluate_NeutralNeedsSpan(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	e := alert.New(enabled(), alert.WithClock(clk.Now))

	// Five readings within 4 seconds are not enough.
	fired, _ := feed(e, clk, 5, time.Second, 75, types.LabelTalking)
	if fired != 0 {
		t.Fatalf("fired %d, want 0 before span elapses", fired)
	}
	clk.Advance(time.Second)
	if _, ok := e.Evaluate(75, types.LabelTalking); !ok {
		t.Error("want alert once the span reaches 5s")
	}
}

func TestEvaluate_NeutralNeedsReadings(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	e := alert.New(enabled(), alert.WithClock(clk.Now))

	fired, _ := feed(e, clk, 4, 3*time.Second, 75, types.LabelTalking)
	if fired != 0 {
		t.Fatalf("fired %d, want 0 with only 4 readings", fired)
	}
	if st := e.State(); st.Count != 4 || st.Phase != alert.PhaseAccumulating {
		t.Errorf("state = %+v, want 4 accumulating", st)
	}
}

func TestEvaluate_CriticalFastPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		label types.NoiseLabel
		loud  float64
		step  time.Duration
		want  int
	}{
		{types.LabelSiren, 55, time.Second, 1},
		{types.LabelGunshot, 51, 1500 * time.Millisecond, 1},
		{types.LabelBabyCrying, 60, 500 * time.Millisecond, 0},
		{types.LabelScreaming, 50, time.Second, 0},
	}
	for _, tc := range tests {
		t.Run(string(tc.label), func(t *testing.T) {
			t.Parallel()
			clk := newFakeClock()
			e := alert.New(enabled(), alert.WithClock(clk.Now))
			fired, d := feed(e, clk, 2, tc.step, tc.loud, tc.label)
			if fired != tc.want {
				t.Fatalf("fired %d, want %d", fired, tc.want)
			}
			if fired == 1 && (d.Threshold != 50 || d.Class != alert.ClassCritical) {
				t.Errorf("decision = %+v, want critical threshold 50", d)
			}
		})
	}
}

func TestEvaluate_AmbientThreshold(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		loud float64
		want int
	}{
		{"at threshold", 95, 0},
		{"below threshold", 90, 0},
		{"above threshold", 96, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			clk := newFakeClock()
			e := alert.New(enabled(), alert.WithClock(clk.Now))
			fired, _ := feed(e, clk, 6, 1250*time.Millisecond, tc.loud, types.LabelFan)
			if fired != tc.want {
				t.Errorf("fired %d, want %d", fired, tc.want)
			}
		})
	}
}

func TestEvaluate_ProfileThreshold(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	s := alert.StaticSettings(alert.Snapshot{NotificationsEnabled: true, ProfileName: "Study", Threshold: 60})
	e := alert.New(s, alert.WithClock(clk.Now))

	fired, d := feed(e, clk, 5, 1250*time.Millisecond, 65, types.NoiseLabel("Vacuum cleaner"))
	if fired != 1 {
		t.Fatalf("fired %d, want 1 above the profile threshold", fired)
	}
	if d.Message != "Study Threshold Exceeded (65.0 dB)" {
		t.Errorf("message = %q", d.Message)
	}
}

func TestEvaluate_QuietReadingResets(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	e := alert.New(enabled(), alert.WithClock(clk.Now))

	feed(e, clk, 4, 1250*time.Millisecond, 75, types.LabelTalking)
	clk.Advance(1250 * time.Millisecond)
	if _, ok := e.Evaluate(70, types.LabelTalking); ok {
		t.Fatal("fired on a reading at the threshold")
	}
	if st := e.State(); st.Count != 0 || st.Phase != alert.PhaseIdle {
		t.Errorf("state after quiet reading = %+v, want idle", st)
	}
}

func TestEvaluate_DisabledResets(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	s := &mutableSettings{snap: alert.Snapshot{NotificationsEnabled: true}}
	e := alert.New(s, alert.WithClock(clk.Now))

	feed(e, clk, 3, time.Second, 80, types.LabelTalking)
	s.set(alert.Snapshot{NotificationsEnabled: false})
	clk.Advance(time.Second)
	if _, ok := e.Evaluate(80, types.LabelTalking); ok {
		t.Fatal("fired while notifications disabled")
	}
	if st := e.State(); st.Count != 0 {
		t.Errorf("count = %d, want 0 after disabled reading", st.Count)
	}

	// Re-enabling starts accumulation from scratch.
	s.set(alert.Snapshot{NotificationsEnabled: true})
	clk.Advance(time.Second)
	if fired, _ := feed(e, clk, 4, 1250*time.Millisecond, 80, types.LabelTalking); fired != 0 {
		t.Fatalf("fired %d within four readings of re-enabling, want 0", fired)
	}
	clk.Advance(1250 * time.Millisecond)
	if _, ok := e.Evaluate(80, types.LabelTalking); !ok {
		t.Error("fifth reading after re-enabling did not fire")
	}
}

func TestEvaluate_SettingsErrorTreatedAsEnabled(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	s := &mutableSettings{err: errors.New("store closed")}
	e := alert.New(s, alert.WithClock(clk.Now))

	fired, d := feed(e, clk, 5, 1250*time.Millisecond, 75, types.LabelTalking)
	if fired != 1 {
		t.Fatalf("fired %d, want 1 with unreadable settings", fired)
	}
	if d.Message != "Default Mode Threshold Exceeded (75.0 dB)" {
		t.Errorf("message = %q", d.Message)
	}
}

func TestEvaluate_CooldownExpires(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	e := alert.New(enabled(), alert.WithClock(clk.Now))

	if fired, _ := feed(e, clk, 2, time.Second, 60, types.LabelSiren); fired != 1 {
		t.Fatalf("first alert: fired %d, want 1", fired)
	}

	clk.Advance(30 * time.Second)
	if fired, _ := feed(e, clk, 3, time.Second, 60, types.LabelSiren); fired != 0 {
		t.Fatalf("fired %d within cooldown, want 0", fired)
	}

	// 60s after the first alert the accumulated readings fire again.
	clk.Advance(28 * time.Second)
	if _, ok := e.Evaluate(60, types.LabelSiren); !ok {
		t.Error("want alert once cooldown elapsed")
	}
}

func TestEvaluate_DecisionRecords(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	e := alert.New(enabled(), alert.WithClock(clk.Now))

	_, d := feed(e, clk, 2, time.Second, 88.46, types.LabelGlassBreaking)
	if d.Title != "High Noise Alert!" {
		t.Errorf("title = %q", d.Title)
	}
	if d.Message != "Critical Noise Detected (88.5 dB)" {
		t.Errorf("message = %q", d.Message)
	}
	n := d.Notification
	if n.Viewed || n.NoiseType != types.LabelGlassBreaking || n.DecibelLevel != 88 || !n.Timestamp.Equal(clk.Now()) {
		t.Errorf("notification = %+v", n)
	}
	ev := d.Event
	if !ev.IsAlert || ev.DecibelLevel != 88.46 || ev.NoiseType != types.LabelGlassBreaking {
		t.Errorf("event = %+v", ev)
	}
	if st := e.State(); st.Count != 0 || !st.LastAlertAt.Equal(clk.Now()) {
		t.Errorf("state after alert = %+v", st)
	}
}

func TestReset_KeepsCooldown(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	e := alert.New(enabled(), alert.WithClock(clk.Now))

	feed(e, clk, 2, time.Second, 60, types.LabelSiren)
	e.Reset()
	clk.Advance(time.Second)
	if fired, _ := feed(e, clk, 2, time.Second, 60, types.LabelSiren); fired != 0 {
		t.Errorf("fired %d after reset inside cooldown, want 0", fired)
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		label   types.NoiseLabel
		loud    float64
		profile string
		want    string
	}{
		{types.LabelScreaming, 72.04, "Study", "Critical Noise Detected (72.0 dB)"},
		{types.LabelGlassBreaking, 55, "", "Critical Noise Detected (55.0 dB)"},
		{types.LabelSiren, 61.26, "", "Default Mode Threshold Exceeded (61.3 dB)"},
		{types.LabelTalking, 75, "Meeting", "Meeting Threshold Exceeded (75.0 dB)"},
	}
	for _, tc := range tests {
		if got := alert.Message(tc.label, tc.loud, tc.profile); got != tc.want {
			t.Errorf("Message(%q, %v, %q) = %q, want %q", tc.label, tc.loud, tc.profile, got, tc.want)
		}
	}
}

func TestPolicyFor(t *testing.T) {
	t.Parallel()
	cfg := alert.New(nil).Config()
	tests := []struct {
		label types.NoiseLabel
		want  alert.Policy
	}{
		{types.LabelWhiteNoise, alert.Policy{Class: alert.ClassAmbient, Threshold: 95}},
		{types.LabelHeartbeat, alert.Policy{Class: alert.ClassAmbient, Threshold: 95}},
		{types.LabelBabyCrying, alert.Policy{Class: alert.ClassCritical, Threshold: 50, IgnoreDuration: true}},
		{types.LabelUnknown, alert.Policy{Class: alert.ClassNeutral, Threshold: 65}},
		{types.NoiseLabel("Dog"), alert.Policy{Class: alert.ClassNeutral, Threshold: 65}},
	}
	for _, tc := range tests {
		if got := alert.PolicyFor(cfg, tc.label, 65); got != tc.want {
			t.Errorf("PolicyFor(%q) = %+v, want %+v", tc.label, got, tc.want)
		}
	}
}

func TestSetConfig_AppliesToNextReading(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	e := alert.New(enabled(), alert.WithClock(clk.Now))

	if _, fired := e.Evaluate(90, types.LabelFan); fired {
		t.Fatal("ambient reading below 95 dB fired")
	}
	e.SetConfig(alert.Config{AmbientThreshold: 80, FastRequiredReadings: 1})
	if got := e.Config().AmbientThreshold; got != 80 {
		t.Fatalf("AmbientThreshold = %v, want 80", got)
	}
	if got := e.Config().Cooldown; got != alert.DefaultCooldown {
		t.Errorf("Cooldown = %v, want default %v", got, alert.DefaultCooldown)
	}
	if got := e.State().Count; got != 0 {
		t.Fatalf("Count = %d, want 0", got)
	}
	if _, fired := e.Evaluate(90, types.LabelFan); fired {
		t.Fatal("fired on the first reading")
	}
	if got := e.State().Count; got != 1 {
		t.Errorf("Count = %d, want 1 after threshold change", got)
	}
}
