package client

import (
	"strings"

	"support-chat/protocol"
)

// Entry is one row of the local timeline. A pending entry is an optimistic
// echo of a send that has not been confirmed: it has a LocalID and no ID.
type Entry struct {
	protocol.Message
	LocalID string `json:"localId,omitempty"`
}

func (e Entry) Pending() bool {
	return e.ID == 0
}

func confirmed(msgs []protocol.Message) []Entry {
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Entry{Message: m})
	}
	return out
}

// sameEcho reports whether a pending entry looks like the persisted message.
func sameEcho(e Entry, m protocol.Message) bool {
	if e.IsAdmin != m.IsAdmin || (e.Image == nil) != (m.Image == nil) {
		return false
	}
	switch {
	case e.Content == nil && m.Content == nil:
		return true
	case e.Content == nil || m.Content == nil:
		return false
	}
	return strings.TrimSpace(*e.Content) == strings.TrimSpace(*m.Content)
}
