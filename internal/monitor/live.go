package monitor

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/noisewatch/internal/loudness"
	"github.com/MrWong99/noisewatch/pkg/types"
)

// Snapshot is a point-in-time view of the live values. Loudness and Label
// are written by different goroutines and are not updated together; a
// snapshot may pair a new loudness with a slightly older label.
type Snapshot struct {
	Monitoring bool             `json:"monitoring"`
	Loudness   float64          `json:"loudness"`
	Label      types.NoiseLabel `json:"label"`
	Status     string           `json:"status,omitempty"`
	Suppressed bool             `json:"suppressed"`
	At         time.Time        `json:"at"`
}

// subscriberBuffer is the channel depth for each subscriber. Slow
// subscribers miss updates rather than stall the audio loop.
const subscriberBuffer = 16

// LiveState holds the values observers display: the current loudness, the
// current label, whether a session is running and the latest status line.
//
// Loudness is single-writer (the read loop), label is single-writer (the
// inference goroutine); both are lock-free for readers. All methods are safe
// for concurrent use.
type LiveState struct {
	loudness   atomic.Uint64
	label      atomic.Pointer[types.NoiseLabel]
	monitoring atomic.Bool
	suppressed atomic.Bool
	status     atomic.Pointer[string]

	mu     sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// NewLiveState returns a LiveState reporting the floor loudness and Unknown.
func NewLiveState() *LiveState {
	l := &LiveState{subs: make(map[int]chan Snapshot)}
	l.loudness.Store(math.Float64bits(loudness.Floor))
	unknown := types.LabelUnknown
	l.label.Store(&unknown)
	empty := ""
	l.status.Store(&empty)
	return l
}

// Loudness returns the latest published loudness.
func (l *LiveState) Loudness() float64 {
	return math.Float64frombits(l.loudness.Load())
}

// Label returns the latest classification label.
func (l *LiveState) Label() types.NoiseLabel {
	return *l.label.Load()
}

// Monitoring reports whether a session is running.
func (l *LiveState) Monitoring() bool {
	return l.monitoring.Load()
}

// Status returns the latest status line.
func (l *LiveState) Status() string {
	return *l.status.Load()
}

// Snapshot returns the current values.
func (l *LiveState) Snapshot() Snapshot {
	return Snapshot{
		Monitoring: l.monitoring.Load(),
		Loudness:   l.Loudness(),
		Label:      l.Label(),
		Status:     l.Status(),
		Suppressed: l.suppressed.Load(),
		At:         time.Now(),
	}
}

// publishLoudness stores db and notifies subscribers.
func (l *LiveState) publishLoudness(db float64, suppressed bool) {
	l.loudness.Store(math.Float64bits(db))
	l.suppressed.Store(suppressed)
	l.broadcast()
}

// publishLabel stores label. Concurrent writers race and the last one wins.
func (l *LiveState) publishLabel(label types.NoiseLabel) {
	l.label.Store(&label)
}

func (l *LiveState) setStatus(s string) {
	l.status.Store(&s)
}

func (l *LiveState) setMonitoring(on bool) {
	l.monitoring.Store(on)
	if !on {
		l.loudness.Store(math.Float64bits(loudness.Floor))
		l.suppressed.Store(false)
		l.setStatus("")
	}
	l.broadcast()
}

// Subscribe returns a channel receiving a snapshot on every published
// loudness and a cancel function that closes it.
func (l *LiveState) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}

// broadcast sends the current snapshot to every subscriber without
// blocking.
func (l *LiveState) broadcast() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.subs) == 0 {
		return
	}
	snap := l.Snapshot()
	for _, ch := range l.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
