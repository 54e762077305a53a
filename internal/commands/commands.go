// Package commands implements the chat flows of the bot: adding schedules
// from free text, viewing them, logging doses and deleting schedules.
package commands

import (
	"context"
	"sync/atomic"
	"time"

	"pillbot/internal/dose"
	"pillbot/internal/eventbus"
	"pillbot/internal/notifier"
	"pillbot/internal/parser"
	rtsup "pillbot/internal/runtime/supervisor"
	"pillbot/internal/task/scheduler"
	"pillbot/internal/transport/telegram/router"
	"pillbot/pkg/clock"
	logx "pillbot/pkg/logx"
	"pillbot/pkg/tgui"
)

const defaultSessionTTL = 30 * time.Minute

// TickReporter is the matcher's last-pass view, shown by /status.
type TickReporter interface {
	LastReport() (dose.TickReport, bool)
}

// Deps are the collaborators of the chat flows. Store, Parser and Clock are
// required; the rest may be nil.
type Deps struct {
	Store    dose.Store
	Parser   parser.Parser
	Clock    clock.Clock
	Notifier *notifier.Service
	Tokens   *tgui.TokenStore
	Bus      eventbus.Bus
	Log      logx.Logger

	DeveloperChatID int64
	SessionTTL      time.Duration

	// /status sources.
	Ticks       TickReporter
	Scheduler   *scheduler.Service
	Supervisors func() map[string]*rtsup.Supervisor
}

type Bot struct {
	d        Deps
	log      logx.Logger
	ledger   *dose.Ledger
	planner  *dose.Planner
	sessions *sessions
	devChat  atomic.Int64
	started  time.Time
}

func New(d Deps) *Bot {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Clock == nil {
		d.Clock = clock.Real(nil)
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = defaultSessionTTL
	}
	b := &Bot{
		d:        d,
		log:      d.Log.With(logx.String("comp", "commands")),
		planner:  dose.NewPlanner(d.Store, d.Log),
		sessions: newSessions(d.SessionTTL),
		started:  d.Clock.Now(),
	}
	b.ledger = dose.NewLedger(d.Store, dose.WithTakenHook(b.publishTaken))
	b.devChat.Store(d.DeveloperChatID)
	return b
}

// Ledger is the ledger the chat flows record into.
func (b *Bot) Ledger() *dose.Ledger { return b.ledger }

// Apply takes the reloadable settings.
func (b *Bot) Apply(developerChatID int64, sessionTTL time.Duration) {
	b.devChat.Store(developerChatID)
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	b.sessions.setTTL(sessionTTL)
}

// Register installs the command tree, the take-button routes and the
// conversation text handler on m.
func (b *Bot) Register(ctx context.Context, m *router.Manager) {
	m.SetRegistry(ctx, b.Commands(), b.Callbacks())
	m.SetTextHandler(b.handleText)
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "show the main menu", Access: router.AccessEveryone, Hidden: true, Handle: b.cmdStart},
		{Name: "addpill", Aliases: []string{"add"}, Description: "add medication from a description", Handle: b.cmdAddPill},
		{Name: "showpills", Aliases: []string{"list"}, Description: "list your medications", Handle: b.cmdShowPills},
		{Name: "todaypills", Aliases: []string{"today"}, Description: "today's doses with taken marks", Handle: b.cmdTodayPills},
		{Name: "logpill", Aliases: []string{"log"}, Description: "log a pending dose as taken", Handle: b.cmdLogPill},
		{Name: "deletepill", Aliases: []string{"delete"}, Description: "remove a medication", Usage: "/deletepill [name]", Handle: b.cmdDeletePill},
		{Name: "cancel", Description: "cancel the current action", Access: router.AccessEveryone, Handle: b.cmdCancel},
		{Name: "status", Description: "bot runtime status", Access: router.AccessOwnerOnly, Timeout: 10 * time.Second, Handle: b.cmdStatus},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Scope: notifier.TakeScope, Action: notifier.TakeAction, Handle: b.cbTake},
		{Scope: notifier.TakeScope, Action: notifier.MarkAction, Handle: b.cbMark},
	}
}

func keyOf(req *router.Request) sessionKey {
	return sessionKey{chat: req.Chat.ChatID, user: req.FromID}
}

// handleText routes plain messages to the conversation the sender is in.
// Messages outside a conversation are ignored.
func (b *Bot) handleText(ctx context.Context, req *router.Request) error {
	k := keyOf(req)
	ss, ok := b.sessions.get(k)
	if !ok {
		return nil
	}
	switch ss.step {
	case stepAddText, stepAddCorrection:
		return b.addParse(ctx, req, k, ss)
	case stepAddConfirm:
		return b.addConfirm(ctx, req, k, ss)
	case stepLogChoice:
		b.sessions.end(k)
		return b.logChoice(ctx, req)
	case stepDeleteChoice:
		b.sessions.end(k)
		return b.deleteByName(ctx, req, req.Text)
	}
	return nil
}

func (b *Bot) cmdCancel(ctx context.Context, req *router.Request) error {
	if !b.sessions.end(keyOf(req)) {
		return req.Reply(ctx, txtNothingToCancel, removeKeyboard())
	}
	return req.Reply(ctx, txtCancelled, removeKeyboard())
}

func (b *Bot) publishTaken(rec dose.TakenRecord) {
	if b.d.Bus == nil {
		return
	}
	b.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeDoseTaken, Time: rec.LoggedAt, Data: rec})
}

func (b *Bot) now() time.Time { return b.d.Clock.Now() }
