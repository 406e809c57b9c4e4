package client

import (
	"reflect"

	"support-chat/protocol"
)

// Merge folds a poll result into the local timeline. Messages already known by
// id are dropped; pending echoes matching a genuinely new message by sender and
// content are collapsed into it; the rest is appended in server order. The
// returned flag is false when nothing changed, in which case local is returned
// as is.
func Merge(local []Entry, incoming []protocol.Message) ([]Entry, bool) {
	known := make(map[uint]struct{}, len(local)+len(incoming))
	for _, e := range local {
		if !e.Pending() {
			known[e.ID] = struct{}{}
		}
	}

	fresh := make([]protocol.Message, 0, len(incoming))
	for _, m := range incoming {
		if _, ok := known[m.ID]; ok || m.ID == 0 {
			continue
		}
		known[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return local, false
	}

	out := make([]Entry, 0, len(local)+len(fresh))
	for _, e := range local {
		if e.Pending() && echoed(e, fresh) {
			continue
		}
		out = append(out, e)
	}
	for _, m := range fresh {
		out = append(out, Entry{Message: m})
	}
	return out, true
}

func echoed(e Entry, fresh []protocol.Message) bool {
	for _, m := range fresh {
		if sameEcho(e, m) {
			return true
		}
	}
	return false
}

// Prepend adds an older page in front of the timeline, skipping ids already
// present.
func Prepend(local []Entry, older []protocol.Message) []Entry {
	known := make(map[uint]struct{}, len(local))
	for _, e := range local {
		if !e.Pending() {
			known[e.ID] = struct{}{}
		}
	}
	out := make([]Entry, 0, len(local)+len(older))
	for _, m := range older {
		if _, ok := known[m.ID]; ok {
			continue
		}
		out = append(out, Entry{Message: m})
	}
	return append(out, local...)
}

// ReconcileReactions overwrites the reaction groups of confirmed entries with
// the server's view for every message present in page.
func ReconcileReactions(local []Entry, page []protocol.Message) ([]Entry, bool) {
	byID := make(map[uint][]protocol.ReactionGroup, len(page))
	for _, m := range page {
		byID[m.ID] = m.Reactions
	}

	var out []Entry
	for i, e := range local {
		groups, ok := byID[e.ID]
		if e.Pending() || !ok || sameGroups(e.Reactions, groups) {
			continue
		}
		if out == nil {
			out = append([]Entry(nil), local...)
		}
		out[i].Reactions = append([]protocol.ReactionGroup{}, groups...)
	}
	if out == nil {
		return local, false
	}
	return out, true
}

func sameGroups(a, b []protocol.ReactionGroup) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
