package router

import (
	"html"
	"sort"
	"strings"

	kit "pillbot/internal/transport"
)

func (m *Manager) helpText(from int64) string {
	m.mu.RLock()
	order := append([]*Command(nil), m.order...)
	m.mu.RUnlock()

	sort.SliceStable(order, func(i, j int) bool {
		oi, oj := order[i].Access == AccessOwnerOnly, order[j].Access == AccessOwnerOnly
		if oi != oj {
			return !oi
		}
		return order[i].Name < order[j].Name
	})

	lines := []string{"📚 <b>Commands</b>", ""}
	for _, c := range order {
		if c.Hidden || (c.Access == AccessOwnerOnly && !m.IsOwner(from)) {
			continue
		}
		line := "• <code>/" + html.EscapeString(c.Name) + "</code>"
		if c.Description != "" {
			line += " - " + html.EscapeString(c.Description)
		}
		if c.Usage != "" {
			line += "\n   <i>" + html.EscapeString(c.Usage) + "</i>"
		}
		if c.Access == AccessOwnerOnly {
			line = "• 🔒" + strings.TrimPrefix(line, "•")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// menuFor lists commands for the Telegram menu. Telegram accepts only
// [a-z0-9_]{1,32} names.
func menuFor(cmds []*Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		if c.Hidden || c.Access == AccessOwnerOnly || !validMenuName(c.Name) {
			continue
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

func validMenuName(s string) bool {
	if s == "" || len(s) > 32 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}
