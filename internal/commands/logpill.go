package commands

import (
	"context"
	"fmt"
	"strings"

	"pillbot/internal/dose"
	"pillbot/internal/transport/telegram/router"
	logx "pillbot/pkg/logx"
	"pillbot/pkg/tgui"
)

func (b *Bot) cmdLogPill(ctx context.Context, req *router.Request) error {
	pending, err := b.planner.PendingFor(ctx, req.FromID, b.now())
	if err != nil {
		req.Logger.Error("pending list failed", logx.Err(err))
		return req.Reply(ctx, txtGenericError, nil)
	}
	if len(pending) == 0 {
		return req.Reply(ctx, txtAllLogged, nil)
	}
	rows := make([][]string, 0, len(pending)+1)
	for _, it := range pending {
		rows = append(rows, []string{choiceLabel(it.Name, it.Time)})
	}
	rows = append(rows, []string{btnCancel})
	b.sessions.begin(keyOf(req), stepLogChoice)
	return req.Reply(ctx, txtLogPrompt, withMarkup(tgui.ReplyKeyboard(rows...)))
}

func choiceLabel(name string, t dose.TimeOfDay) string {
	return fmt.Sprintf("%s (%s)", name, t)
}

// parseChoice splits "name (HH:MM)" at the last " (", so names may contain
// parentheses themselves.
func parseChoice(s string) (string, dose.TimeOfDay, bool) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, " (")
	if i <= 0 || !strings.HasSuffix(s, ")") {
		return "", dose.TimeOfDay{}, false
	}
	t, err := dose.ParseTimeOfDay(s[i+2 : len(s)-1])
	if err != nil {
		return "", dose.TimeOfDay{}, false
	}
	return s[:i], t, true
}

func (b *Bot) logChoice(ctx context.Context, req *router.Request) error {
	if strings.EqualFold(strings.TrimSpace(req.Text), btnCancel) {
		return req.Reply(ctx, txtCancelled, startKeyboard())
	}
	name, t, ok := parseChoice(req.Text)
	if !ok {
		return req.Reply(ctx, fmt.Sprintf(txtLogUnknown, req.Text), startKeyboard())
	}
	now := b.now()
	due, err := b.planner.DueOn(ctx, req.FromID, now)
	if err != nil {
		req.Logger.Error("due list failed", logx.Err(err))
		return req.Reply(ctx, txtGenericError, startKeyboard())
	}
	found := false
	for _, it := range due {
		if it.Name == name && it.Time == t {
			found = true
			break
		}
	}
	if !found {
		return req.Reply(ctx, fmt.Sprintf(txtLogUnknown, req.Text), startKeyboard())
	}
	slot := dose.Slot{OwnerID: req.FromID, Name: name, Date: dose.DateOf(now), Time: t}
	return req.Reply(ctx, b.record(ctx, req, slot), startKeyboard())
}
