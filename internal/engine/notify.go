package engine

import (
	"log/slog"
	"time"
)

// UpdateKind says what changed.
type UpdateKind string

const (
	UpdateDay   UpdateKind = "day"
	UpdateEvent UpdateKind = "event"
)

// subscriberBuffer is how many updates a subscriber may fall behind before
// updates to it are dropped.
const subscriberBuffer = 64

// Update is sent to subscribers after every mutation.
type Update struct {
	Kind        UpdateKind `json:"kind"`
	Day         uint64     `json:"day"`
	Region      string     `json:"region,omitempty"`
	Description string     `json:"description,omitempty"`
	At          time.Time  `json:"at"`
}

// Subscribe registers a listener for market updates. The caller must
// Unsubscribe with the returned id when done.
func (m *Market) Subscribe() (int, <-chan Update) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Update, subscriberBuffer)
	m.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (m *Market) Unsubscribe(id int) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
}

// publish never blocks; slow subscribers miss updates.
func (m *Market) publish(u Update) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for id, ch := range m.subs {
		select {
		case ch <- u:
		default:
			slog.Debug("dropping market update for slow subscriber", "sub_id", id, "kind", u.Kind)
		}
	}
}
