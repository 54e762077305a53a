package commands

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"pillbot/internal/dose"
	"pillbot/internal/notifier"
	kit "pillbot/internal/transport"
	"pillbot/internal/transport/telegram/router"
	logx "pillbot/pkg/logx"
	"pillbot/pkg/tgui"
)

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	b.sessions.end(keyOf(req))
	mention := fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, req.FromID, tgui.Esc(displayName(req)))
	msg := tgui.New().
		HTML(tgui.H(fmt.Sprintf(tgui.Esc(txtStart).String(), mention))).
		Markup(mainMenu()).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func displayName(req *router.Request) string {
	if n := strings.TrimSpace(req.FromName); n != "" {
		return n
	}
	return "there"
}

func (b *Bot) cmdShowPills(ctx context.Context, req *router.Request) error {
	schedules, bad, err := dose.LoadSchedules(ctx, b.d.Store, req.FromID)
	if err != nil {
		req.Logger.Error("list schedules failed", logx.Err(err))
		return req.Reply(ctx, txtGenericError, nil)
	}
	for _, e := range bad {
		req.Logger.Warn("skipping malformed schedule", logx.Err(e))
	}
	if len(schedules) == 0 {
		return req.Reply(ctx, txtNoneShow, nil)
	}
	mb := tgui.New().HTML(tgui.B(txtShowHeader)).Blank()
	for i, s := range schedules {
		mb.HTML(tgui.B(fmt.Sprintf("%d. %s", i+1, s.Name)) + tgui.Esc(fmt.Sprintf(" (Starts on %s)", s.Start)))
		for _, p := range s.Phases {
			mb.HTML(renderPhase(p))
		}
		mb.Blank()
	}
	_, err = mb.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) cmdTodayPills(ctx context.Context, req *router.Request) error {
	msg, err := b.todayView(ctx, req.FromID)
	if err != nil {
		req.Logger.Error("today view failed", logx.Err(err))
		return req.Reply(ctx, txtGenericError, nil)
	}
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

// todayView renders the owner's due list with a take button per pending
// dose.
func (b *Bot) todayView(ctx context.Context, owner int64) (tgui.Message, error) {
	now := b.now()
	items, err := b.planner.DueOn(ctx, owner, now)
	if err != nil {
		return tgui.Message{}, err
	}
	if len(items) == 0 {
		return tgui.New().Line(txtNoneToday).Build(), nil
	}
	day := dose.DateOf(now)
	mb := tgui.New().HTML(tgui.B(txtTodayHeader)).Blank()
	kb := tgui.NewInline()
	buttons := 0
	for _, it := range items {
		mark, state := "⚪️", "Pending"
		if it.Taken {
			mark, state = "✅", "Taken"
		}
		mb.HTML(tgui.H(mark+" ") + tgui.B(it.Name) + " - " + tgui.Code(it.Dose) + " at " + tgui.Code(it.Time.String()) + tgui.H(" ("+state+")"))
		if it.Taken {
			continue
		}
		slot := dose.Slot{OwnerID: owner, Name: it.Name, Date: day, Time: it.Time}
		if data, ok := notifier.SlotData(notifier.MarkAction, slot, b.d.Tokens); ok {
			kb.Row(tgui.Btn(fmt.Sprintf("✅ Mark '%s' as Taken", tgui.TruncRunes(it.Name, 40)), data))
			buttons++
		}
	}
	if buttons > 0 {
		mb.Inline(kb)
	}
	return mb.Build(), nil
}

// cbTake handles the reminder button: the reminder message is replaced by
// the outcome.
func (b *Bot) cbTake(ctx context.Context, req *router.Request) error {
	ref := callbackRef(req)
	slot, err := notifier.TakeSlot(req.FromID, req.Payload, b.d.Tokens)
	if err != nil {
		req.Logger.Warn("take payload rejected", logx.String("payload", req.Payload), logx.Err(err))
		return req.Adapter.EditText(ctx, ref, txtExpired, nil)
	}
	text := b.record(ctx, req, slot)
	return req.Adapter.EditText(ctx, ref, text, nil)
}

// cbMark handles the day-view button and redraws the view in place.
func (b *Bot) cbMark(ctx context.Context, req *router.Request) error {
	ref := callbackRef(req)
	slot, err := notifier.TakeSlot(req.FromID, req.Payload, b.d.Tokens)
	if err != nil {
		req.Logger.Warn("mark payload rejected", logx.String("payload", req.Payload), logx.Err(err))
		return req.Adapter.EditText(ctx, ref, txtExpired, nil)
	}
	if err := b.ledger.RecordTaken(ctx, slot, b.now()); err != nil && dose.IsOperational(err) {
		req.Logger.Error("record taken failed", logx.String("slot", slot.Key()), logx.Err(err))
		return req.Adapter.EditText(ctx, ref, txtUpdateFailed, nil)
	}
	msg, err := b.todayView(ctx, req.FromID)
	if err != nil {
		req.Logger.Error("today view failed", logx.Err(err))
		return req.Adapter.EditText(ctx, ref, txtUpdateFailed, nil)
	}
	return msg.Edit(ctx, req.Adapter, ref)
}

// record logs slot and returns the user-facing outcome.
func (b *Bot) record(ctx context.Context, req *router.Request, slot dose.Slot) string {
	err := b.ledger.RecordTaken(ctx, slot, b.now())
	switch {
	case err == nil:
		req.Logger.Info("dose logged", logx.String("slot", slot.Key()))
		return fmt.Sprintf(txtLogged, slot.Name)
	case !dose.IsOperational(err):
		return fmt.Sprintf(txtAlreadyLogged, slot.Name)
	default:
		req.Logger.Error("record taken failed", logx.String("slot", slot.Key()), logx.Err(err))
		return txtGenericError
	}
}

func callbackRef(req *router.Request) kit.MessageRef {
	ref := kit.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID}
	if cb := req.Update.Callback; cb != nil {
		ref.MessageID = cb.MessageID
	}
	return ref
}

func renderPhase(p dose.Phase) tgui.H {
	span := fmt.Sprintf("For %d days", p.Days)
	if p.Ongoing() {
		span = "Ongoing"
	}
	return tgui.Esc("  - "+span+": ") + tgui.Code(p.Dose) + " at " + tgui.Code(p.Time.String())
}

func renderDraft(draft []dose.Schedule) string {
	var sb strings.Builder
	for _, s := range draft {
		sb.WriteString((tgui.B(s.Name) + tgui.Esc(fmt.Sprintf(" (Starts on %s)", s.Start))).String())
		sb.WriteByte('\n')
		for _, p := range s.Phases {
			sb.WriteString(renderPhase(p).String())
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func startKeyboard() *kit.SendOptions { return withMarkup(mainMenu()) }

func removeKeyboard() *kit.SendOptions { return withMarkup(tgui.RemoveKeyboard()) }

func withMarkup(rm any) *kit.SendOptions {
	return &kit.SendOptions{ReplyMarkupAdapter: rm}
}

// mainMenu is the persistent /start keyboard.
func mainMenu() *tele.ReplyMarkup {
	rm := tgui.ReplyKeyboard(
		[]string{"/addpill", "/showpills"},
		[]string{"/logpill", "/todaypills"},
		[]string{"/deletepill"},
	)
	rm.OneTimeKeyboard = false
	return rm
}
