package arena

import (
	"sync"
	"time"
)

type KillEvent struct {
	Attacker      string    `json:"attacker"`
	Victim        string    `json:"victim"`
	AttackerLevel int       `json:"attacker_level"`
	VictimLevel   int       `json:"victim_level"`
	At            time.Time `json:"at"`
}

// KillFeed is a bounded ring of recent kills, newest first.
type KillFeed struct {
	mu    sync.Mutex
	items []KillEvent
	cap   int
}

func NewKillFeed(capacity int) *KillFeed {
	return &KillFeed{cap: capacity}
}

func (f *KillFeed) Add(e KillEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, e)
	if len(f.items) > f.cap {
		f.items = f.items[len(f.items)-f.cap:]
	}
}

func (f *KillFeed) Recent() []KillEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]KillEvent, len(f.items))
	for i, e := range f.items {
		out[len(f.items)-1-i] = e
	}
	return out
}

func (f *KillFeed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
}

type Event struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// EventLog is a bounded log of human-readable arena events.
type EventLog struct {
	mu    sync.Mutex
	items []Event
	cap   int
}

func NewEventLog(capacity int) *EventLog {
	return &EventLog{cap: capacity}
}

func (l *EventLog) Add(at time.Time, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, Event{At: at, Text: text})
	if len(l.items) > l.cap {
		l.items = l.items[len(l.items)-l.cap:]
	}
}

func (l *EventLog) Recent() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.items))
	copy(out, l.items)
	return out
}

func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
}
