package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pillbot/internal/dose"
	"pillbot/internal/parser"
	kit "pillbot/internal/transport"
	"pillbot/internal/transport/telegram/router"
	logx "pillbot/pkg/logx"
	"pillbot/pkg/tgui"
)

func (b *Bot) cmdAddPill(ctx context.Context, req *router.Request) error {
	b.sessions.begin(keyOf(req), stepAddText)
	return req.Reply(ctx, txtAddInitial, removeKeyboard())
}

// addParse appends the message to the conversation and parses all of it
// again, so a correction is read together with the original description.
func (b *Bot) addParse(ctx context.Context, req *router.Request, k sessionKey, ss *session) error {
	ss.history = append(ss.history, req.Text)
	_ = req.Reply(ctx, txtAnalyzing, removeKeyboard())

	today := dose.DateOf(b.now())
	parsed, err := b.d.Parser.Parse(ctx, req.FromID, today, ss.history)
	switch {
	case errors.Is(err, parser.ErrNothingParsed):
		b.sessions.end(k)
		return req.Reply(ctx, txtParseEmpty, startKeyboard())
	case err != nil:
		b.sessions.end(k)
		req.Logger.Error("schedule parse failed",
			logx.String("session", ss.id),
			logx.Int("messages", len(ss.history)),
			logx.Err(err),
		)
		b.reportParseError(ctx, req.FromID, ss.history, err)
		return req.Reply(ctx, txtGenericError, startKeyboard())
	}

	ss.draft = parsed
	ss.step = stepAddConfirm
	msg := tgui.New().
		HTML(tgui.H(fmt.Sprintf(txtConfirm, renderDraft(parsed)))).
		Markup(tgui.ReplyKeyboard([]string{btnYes}, []string{btnNo}, []string{btnCancel})).
		Build()
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) addConfirm(ctx context.Context, req *router.Request, k sessionKey, ss *session) error {
	switch strings.ToLower(strings.TrimSpace(req.Text)) {
	case "yes":
		b.sessions.end(k)
		return b.saveDraft(ctx, req, ss.draft)
	case "no":
		ss.step = stepAddCorrection
		return req.Reply(ctx, txtCorrection, removeKeyboard())
	case "cancel":
		b.sessions.end(k)
		return req.Reply(ctx, txtCancelled, startKeyboard())
	}
	return req.Reply(ctx, txtChooseYesNo, nil)
}

func (b *Bot) saveDraft(ctx context.Context, req *router.Request, draft []dose.Schedule) error {
	if len(draft) == 0 {
		return req.Reply(ctx, txtSaveEmpty, startKeyboard())
	}
	names := make([]string, 0, len(draft))
	var exists []string
	for _, s := range draft {
		if err := b.d.Store.InsertSchedule(ctx, s); err != nil {
			if errors.Is(err, dose.ErrScheduleExists) {
				exists = append(exists, s.Name)
				continue
			}
			req.Logger.Error("save schedule failed", logx.String("name", s.Name), logx.Err(err))
			if len(names) > 0 {
				_ = req.Reply(ctx, fmt.Sprintf(txtSaved, strings.Join(names, ", ")), nil)
			}
			return req.Reply(ctx, txtGenericError, startKeyboard())
		}
		names = append(names, s.Name)
	}
	req.Logger.Info("schedules saved", logx.Int("count", len(names)), logx.Int("existing", len(exists)))
	var lines []string
	if len(names) > 0 {
		lines = append(lines, fmt.Sprintf(txtSaved, strings.Join(names, ", ")))
	}
	if len(exists) > 0 {
		lines = append(lines, fmt.Sprintf(txtAlreadyExists, strings.Join(exists, ", ")))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), startKeyboard())
}

// reportParseError sends the failed conversation to the developer chat.
func (b *Bot) reportParseError(ctx context.Context, user int64, history []string, perr error) {
	chat := b.devChat.Load()
	if chat == 0 || b.d.Notifier == nil {
		return
	}
	text := tgui.New().
		Title("🔥", "Schedule Parsing Error").
		Blank().
		HTML(tgui.B("User ID:")+" "+tgui.Code(fmt.Sprint(user))).
		HTML(tgui.B("Conversation:")).
		HTML(tgui.Pre(tgui.TruncRunes(strings.Join(history, parser.HistorySeparator), 2500))).
		HTML(tgui.B("Error:")).
		HTML(tgui.Pre(tgui.TruncRunes(perr.Error(), 800))).
		Build()
	if err := b.d.Notifier.Notify(ctx, devNotification(chat, text)); err != nil {
		b.log.Warn("developer report not queued", logx.Err(err))
	}
}

func devNotification(chat int64, msg tgui.Message) kit.Notification {
	return kit.Notification{
		Channel:  "telegram",
		Priority: 8,
		Target:   kit.ChatTarget{ChatID: chat},
		Text:     msg.Text,
		Options:  msg.Opt,
	}
}
