package bus

import (
	"sort"
	"sync"
)

const defaultTrackerCapacity = 100

// Tracker keeps the latest event of each recently seen run, newest first.
type Tracker struct {
	mu       sync.Mutex
	capacity int
	latest   map[string]Event
}

func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = defaultTrackerCapacity
	}
	return &Tracker{capacity: capacity, latest: map[string]Event{}}
}

// Observe records ev as its run's current state. Older events for the run are ignored.
func (t *Tracker) Observe(ev Event) {
	if ev.RunID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.latest[ev.RunID]; ok && ev.At.Before(prev.At) {
		return
	}
	t.latest[ev.RunID] = ev
	for len(t.latest) > t.capacity {
		oldest := ""
		for id, e := range t.latest {
			if oldest == "" || e.At.Before(t.latest[oldest].At) {
				oldest = id
			}
		}
		delete(t.latest, oldest)
	}
}

func (t *Tracker) Runs() []Event {
	t.mu.Lock()
	out := make([]Event, 0, len(t.latest))
	for _, ev := range t.latest {
		out = append(out, ev)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].RunID < out[j].RunID
	})
	return out
}
