package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/noisewatch/internal/alert"
	"github.com/MrWong99/noisewatch/internal/store"
	"github.com/MrWong99/noisewatch/internal/store/mock"
	"github.com/MrWong99/noisewatch/pkg/types"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog([]Profile{
		{ID: "study", Name: "Study", Threshold: 55, IconName: "Book"},
		{ID: "sleep", Name: "Sleep", Threshold: 45},
		{ID: "meeting", Name: "Meeting"},
	})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func TestNewCatalog_Defaults(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)
	p, ok := c.Get("meeting")
	if !ok {
		t.Fatal("meeting not found")
	}
	if p.Threshold != DefaultThreshold || p.IconName != DefaultIcon {
		t.Errorf("meeting = %+v, want defaults", p)
	}
	if p, _ := c.Get("study"); p.IconName != "Book" {
		t.Errorf("study icon = %q, want Book", p.IconName)
	}
	if got := len(c.List()); got != 3 {
		t.Errorf("List() has %d profiles, want 3", got)
	}
}

func TestNewCatalog_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		profiles []Profile
	}{
		{"missing id", []Profile{{Name: "Study"}}},
		{"missing name", []Profile{{ID: "study"}}},
		{"duplicate id", []Profile{{ID: "a", Name: "A"}, {ID: "a", Name: "B"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewCatalog(tc.profiles); err == nil {
				t.Error("NewCatalog returned nil error")
			}
		})
	}
}

func TestCatalog_ReplaceKeepsOldOnError(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)
	if err := c.Replace([]Profile{{ID: "x"}}); err == nil {
		t.Fatal("Replace accepted an invalid profile")
	}
	if _, ok := c.Get("study"); !ok {
		t.Error("catalog changed after failed Replace")
	}
	if err := c.Replace([]Profile{{ID: "gym", Name: "Gym", Threshold: 85}}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if _, ok := c.Get("study"); ok {
		t.Error("old profile still present after Replace")
	}
}

func TestCatalog_Find(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)
	tests := []struct {
		input  string
		wantID string
	}{
		{"study", "study"},
		{"STUDY", "study"},
		{"  Sleep ", "sleep"},
		{"Studdy", "study"},
		{"Meting", "meeting"},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			p, err := c.Find(tc.input)
			if err != nil {
				t.Fatalf("Find(%q): %v", tc.input, err)
			}
			if p.ID != tc.wantID {
				t.Errorf("Find(%q) = %q, want %q", tc.input, p.ID, tc.wantID)
			}
		})
	}
}

func TestCatalog_FindUnknown(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)
	for _, in := range []string{"", "xylophone"} {
		if _, err := c.Find(in); !errors.Is(err, ErrUnknownProfile) {
			t.Errorf("Find(%q) error = %v, want ErrUnknownProfile", in, err)
		}
	}
}

func TestMatcher_NoCandidates(t *testing.T) {
	t.Parallel()
	if _, _, ok := NewMatcher().Match("study", nil); ok {
		t.Error("Match with no candidates reported a match")
	}
}

func TestSettings_Snapshot(t *testing.T) {
	t.Parallel()
	st := store.NewMemStore()
	s := NewSettings(st, testCatalog(t))
	if _, err := s.Snapshot(); !errors.Is(err, ErrSettingsNotLoaded) {
		t.Fatalf("Snapshot before Load = %v, want ErrSettingsNotLoaded", err)
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	want := alert.Snapshot{NotificationsEnabled: true}
	if snap != want {
		t.Errorf("default snapshot = %+v, want %+v", snap, want)
	}

	if _, err := s.Select(context.Background(), "study"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	snap, _ = s.Snapshot()
	want = alert.Snapshot{NotificationsEnabled: true, ProfileName: "Study", Threshold: 55}
	if snap != want {
		t.Errorf("snapshot = %+v, want %+v", snap, want)
	}

	if err := s.SetNotificationsEnabled(context.Background(), false); err != nil {
		t.Fatalf("SetNotificationsEnabled: %v", err)
	}
	if snap, _ = s.Snapshot(); snap.NotificationsEnabled {
		t.Error("NotificationsEnabled = true after disabling")
	}
}

func TestSettings_StaleSelection(t *testing.T) {
	t.Parallel()
	st := &mock.SettingsStore{SettingsResult: store.Settings{NotificationsEnabled: true, SelectedProfileID: "gone"}}
	s := NewSettings(st, testCatalog(t))
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Threshold != 0 || snap.ProfileName != "" {
		t.Errorf("snapshot = %+v, want no profile", snap)
	}
}

func TestSettings_ReadErrorKeepsAlertsOn(t *testing.T) {
	t.Parallel()
	st := &mock.SettingsStore{SettingsErr: errors.New("disk gone")}
	s := NewSettings(st, testCatalog(t))
	if err := s.Load(context.Background()); err == nil {
		t.Fatal("Load returned nil error")
	}
	if _, err := s.Snapshot(); err == nil {
		t.Fatal("Snapshot returned nil error")
	}

	// The engine treats the failure as enabled with the default threshold.
	now := time.Unix(1_700_000_000, 0)
	eng := alert.New(s,
		alert.WithConfig(alert.Config{RequiredReadings: 2, RequiredDuration: time.Second}),
		alert.WithClock(func() time.Time { now = now.Add(time.Second); return now }),
	)
	eng.Evaluate(80, types.LabelTalking)
	if _, fired := eng.Evaluate(80, types.LabelTalking); !fired {
		t.Error("alert did not fire with unreadable settings")
	}
}

func TestSettings_SnapshotServesMemory(t *testing.T) {
	t.Parallel()
	st := &mock.SettingsStore{SettingsResult: store.Settings{NotificationsEnabled: true, SelectedProfileID: "sleep"}}
	s := NewSettings(st, testCatalog(t))
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	reads := st.CallCount("Settings")
	for range 100 {
		if _, err := s.Snapshot(); err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
	}
	if got := st.CallCount("Settings"); got != reads {
		t.Errorf("Snapshot read the store %d times, want 0", got-reads)
	}

	// A failed reload keeps the last good copy.
	st.SettingsErr = errors.New("disk gone")
	if err := s.Load(context.Background()); err == nil {
		t.Fatal("Load returned nil error")
	}
	snap, err := s.Snapshot()
	if err != nil || snap.ProfileName != "Sleep" || snap.Threshold != 45 {
		t.Errorf("Snapshot after failed Load = %+v, %v; want the Sleep profile", snap, err)
	}
}

func TestSettings_WritesPublish(t *testing.T) {
	t.Parallel()
	st := &mock.SettingsStore{SettingsResult: store.DefaultSettings()}
	s := NewSettings(st, testCatalog(t))

	if err := s.SetNotificationsEnabled(context.Background(), false); err != nil {
		t.Fatalf("SetNotificationsEnabled: %v", err)
	}
	snap, err := s.Snapshot()
	if err != nil || snap.NotificationsEnabled {
		t.Errorf("Snapshot = %+v, %v; want disabled without a Load", snap, err)
	}

	st.SaveErr = errors.New("read-only")
	if _, err := s.Select(context.Background(), "study"); err == nil {
		t.Fatal("Select returned nil error")
	}
	if snap, _ := s.Snapshot(); snap.ProfileName != "" {
		t.Errorf("failed save published profile %q", snap.ProfileName)
	}
}

func TestSettings_SelectClears(t *testing.T) {
	t.Parallel()
	st := &mock.SettingsStore{SettingsResult: store.Settings{NotificationsEnabled: true, SelectedProfileID: "study"}}
	s := NewSettings(st, testCatalog(t))
	if _, err := s.Select(context.Background(), ""); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, ok, _ := s.Selected(context.Background()); ok {
		t.Error("profile still selected after clearing")
	}
}

func TestSettings_SelectUnknown(t *testing.T) {
	t.Parallel()
	st := &mock.SettingsStore{SettingsResult: store.DefaultSettings()}
	s := NewSettings(st, testCatalog(t))
	if _, err := s.Select(context.Background(), "xylophone"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("Select error = %v, want ErrUnknownProfile", err)
	}
	if n := st.CallCount("SaveSettings"); n != 0 {
		t.Errorf("SaveSettings called %d times, want 0", n)
	}
}
