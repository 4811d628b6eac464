// Package projection builds local timelines from observed events.
// Handles ordering and deduplication.
// Does not emit events or interact with the terminal directly.
package projection

import (
	"educonnect/transport/ws"
	"sort"
	"sync"
)

// Timeline is the client-side view of the room currently joined.
// A message seen twice, once live and once in a history page, is kept once.
type Timeline struct {
	mu       sync.Mutex
	room     string
	seen     map[string]struct{}
	messages []ws.MessageView
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[string]struct{})}
}

// Reset switches the timeline to a room and loads its history.
func (t *Timeline) Reset(history ws.RoomMessagesView) []ws.MessageView {
	t.mu.Lock()
	t.room = history.Room
	t.seen = make(map[string]struct{})
	t.messages = nil
	t.mu.Unlock()
	return t.Add(history.Messages...)
}

// Add keeps messages of the current room only and returns the ones not seen before,
// oldest first.
func (t *Timeline) Add(views ...ws.MessageView) []ws.MessageView {
	t.mu.Lock()
	defer t.mu.Unlock()

	var added []ws.MessageView
	for _, view := range views {
		if t.room != "" && view.ConversationID != t.room {
			continue
		}
		if _, ok := t.seen[view.ID]; ok {
			continue
		}
		t.seen[view.ID] = struct{}{}
		added = append(added, view)
	}
	t.messages = append(t.messages, added...)
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].Timestamp.Before(t.messages[j].Timestamp)
	})
	sort.SliceStable(added, func(i, j int) bool {
		return added[i].Timestamp.Before(added[j].Timestamp)
	})
	return added
}

func (t *Timeline) Room() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.room
}

func (t *Timeline) Messages() []ws.MessageView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ws.MessageView(nil), t.messages...)
}
