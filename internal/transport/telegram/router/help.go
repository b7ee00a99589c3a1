package router

import (
	"sort"
	"strings"

	"remindbot/pkg/tgui"
)

// helpText renders HTML help: the command list, or details for one command.
// Owner-only commands are hidden from everyone else.
func (m *CommandManager) helpText(args []string, owner bool) string {
	m.mu.RLock()
	table := m.cmds
	ordered := append([]Command(nil), m.ordered...)
	m.mu.RUnlock()

	if len(args) > 0 {
		c, ok := table[commandWord(args[0])]
		if !ok || (c.Access == AccessOwnerOnly && !owner) {
			return tgui.Lines(
				tgui.Line("❓ ", tgui.B("Unknown command")),
				tgui.Line("Send ", tgui.Code("/help"), " for the list."),
			).String()
		}
		return commandHelp(c).String()
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Access != ordered[j].Access {
			return ordered[i].Access < ordered[j].Access
		}
		return ordered[i].Name < ordered[j].Name
	})
	lines := []tgui.H{tgui.Line("📚 ", tgui.B("Commands"))}
	for _, c := range ordered {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		lock := tgui.H("")
		if c.Access == AccessOwnerOnly {
			lock = "🔒 "
		}
		line := tgui.Line("• ", lock, tgui.Code("/"+c.Name))
		if d := strings.TrimSpace(c.Description); d != "" {
			line = tgui.Line(line, " — ", tgui.Esc(d))
		}
		lines = append(lines, line)
	}
	lines = append(lines, "",
		tgui.Line("Any other message becomes a reminder, e.g. ", tgui.I("Remind me in 30 minutes to stretch"), "."),
		"Photos and files work too: put the time in the caption.")
	return tgui.Lines(lines...).String()
}

func commandHelp(c *Command) tgui.H {
	lines := []tgui.H{tgui.Line("📚 ", tgui.B("/"+c.Name))}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, tgui.Esc(d))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, tgui.Line("🔒 ", tgui.I("owner only")))
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", tgui.B("Usage"), tgui.Code(u))
	}
	if len(c.Aliases) > 0 {
		as := make([]tgui.H, 0, len(c.Aliases))
		for _, a := range c.Aliases {
			as = append(as, tgui.Code("/"+a))
		}
		lines = append(lines, "", tgui.Line(tgui.B("Aliases"), " ", tgui.JoinH(" ", as...)))
	}
	return tgui.Lines(lines...)
}
