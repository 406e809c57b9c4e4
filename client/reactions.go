package client

import "support-chat/protocol"

// ApplyReactionToggle mirrors the server's one-reaction-per-party rule on a
// message's reaction groups. The input slice is not modified.
func ApplyReactionToggle(groups []protocol.ReactionGroup, emoji string, operator bool) []protocol.ReactionGroup {
	mine := func(g protocol.ReactionGroup) bool {
		if operator {
			return g.HasAdmin
		}
		return g.HasUser
	}
	setMine := func(g *protocol.ReactionGroup, v bool) {
		if operator {
			g.HasAdmin = v
		} else {
			g.HasUser = v
		}
	}

	removing := false
	for _, g := range groups {
		if g.Emoji == emoji && mine(g) {
			removing = true
			break
		}
	}

	out := make([]protocol.ReactionGroup, 0, len(groups)+1)
	found := false
	for _, g := range groups {
		if mine(g) {
			g.Count--
			setMine(&g, false)
		}
		if g.Emoji == emoji && !removing {
			g.Count++
			setMine(&g, true)
			found = true
		}
		if g.Count > 0 {
			out = append(out, g)
		}
	}
	if !found && !removing {
		g := protocol.ReactionGroup{Emoji: emoji, Count: 1}
		setMine(&g, true)
		out = append(out, g)
	}
	return out
}
