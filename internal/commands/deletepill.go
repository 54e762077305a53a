package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pillbot/internal/dose"
	"pillbot/internal/transport/telegram/router"
	logx "pillbot/pkg/logx"
	"pillbot/pkg/tgui"
)

// cmdDeletePill deletes the named schedule directly, or offers the owner's
// schedule names to choose from.
func (b *Bot) cmdDeletePill(ctx context.Context, req *router.Request) error {
	if len(req.Args) > 0 {
		return b.deleteByName(ctx, req, strings.Join(req.Args, " "))
	}
	schedules, _, err := dose.LoadSchedules(ctx, b.d.Store, req.FromID)
	if err != nil {
		req.Logger.Error("list schedules failed", logx.Err(err))
		return req.Reply(ctx, txtGenericError, nil)
	}
	names := uniqueNames(schedules)
	if len(names) == 0 {
		return req.Reply(ctx, txtNoneDelete, nil)
	}
	rows := make([][]string, 0, len(names)+1)
	for _, n := range names {
		rows = append(rows, []string{n})
	}
	rows = append(rows, []string{btnCancel})
	b.sessions.begin(keyOf(req), stepDeleteChoice)
	return req.Reply(ctx, txtDeletePrompt, withMarkup(tgui.ReplyKeyboard(rows...)))
}

func (b *Bot) deleteByName(ctx context.Context, req *router.Request, name string) error {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, btnCancel) {
		return req.Reply(ctx, txtCancelled, startKeyboard())
	}
	n, err := dose.DeleteSchedule(ctx, b.d.Store, req.FromID, name)
	switch {
	case errors.Is(err, dose.ErrNotFound):
		return req.Reply(ctx, txtDeleteMissing, startKeyboard())
	case err != nil:
		req.Logger.Error("delete schedule failed", logx.String("name", name), logx.Err(err))
		return req.Reply(ctx, txtGenericError, startKeyboard())
	}
	req.Logger.Info("schedule deleted", logx.String("name", name), logx.Int("rows", n))
	return req.Reply(ctx, fmt.Sprintf(txtDeleted, name), startKeyboard())
}

func uniqueNames(schedules []dose.Schedule) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(schedules))
	for _, s := range schedules {
		if !seen[s.Name] {
			seen[s.Name] = true
			out = append(out, s.Name)
		}
	}
	return out
}
