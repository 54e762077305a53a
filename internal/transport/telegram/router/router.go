// Package router turns chat updates into handler calls: slash commands,
// inline-button callbacks ("scope:action:payload") and free text for
// conversations in progress.
package router

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	rtsup "pillbot/internal/runtime/supervisor"
	kit "pillbot/internal/transport"
	logx "pillbot/pkg/logx"
)

type Access int

const (
	// AccessAllowed admits users on the allowlist; an empty allowlist admits
	// everyone.
	AccessAllowed Access = iota
	AccessEveryone
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	// Hidden keeps the command out of /help and the Telegram menu.
	Hidden bool
	Handle HandlerFunc
}

type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	FromName string
	Command  string // command name, callback key or "text"
	Args     []string
	Text     string // full message text
	Payload  string // callback payload
	ReqID    string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

type Manager struct {
	mu        sync.RWMutex
	cmds      map[string]*Command
	order     []*Command
	callbacks map[string]CallbackRoute // "scope:action"
	text      HandlerFunc
	owners    []int64
	allowed   []int64

	log     logx.Logger
	adapter kit.Adapter
	workers int

	runMu sync.Mutex
	sup   *rtsup.Supervisor
}

type Option func(*Manager)

// WithWorkers sets the number of dispatch shards. Updates from one chat are
// always handled by the same shard, in arrival order.
func WithWorkers(n int) Option { return func(m *Manager) { m.workers = n } }

func New(log logx.Logger, adapter kit.Adapter, opts ...Option) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		cmds:      map[string]*Command{},
		callbacks: map[string]CallbackRoute{},
		log:       log,
		adapter:   adapter,
		workers:   4,
	}
	for _, o := range opts {
		o(m)
	}
	m.workers = max(m.workers, 1)
	return m
}

// SetAccess replaces the owner list and the allowlist. Safe during reload.
func (m *Manager) SetAccess(owners, allowed []int64) {
	m.mu.Lock()
	m.owners = slices.Clone(owners)
	m.allowed = slices.Clone(allowed)
	m.mu.Unlock()
}

func (m *Manager) permitted(a Access, from int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch a {
	case AccessEveryone:
		return true
	case AccessOwnerOnly:
		return slices.Contains(m.owners, from)
	default:
		return len(m.allowed) == 0 || slices.Contains(m.allowed, from) || slices.Contains(m.owners, from)
	}
}

// IsOwner reports whether id is a configured owner.
func (m *Manager) IsOwner(id int64) bool { return m.permitted(AccessOwnerOnly, id) }

// SetRegistry installs commands and callback routes, adds /help and pushes
// the command menu to the adapter in the background.
func (m *Manager) SetRegistry(ctx context.Context, cmds []Command, cbs []CallbackRoute) {
	cmds = append(slices.Clone(cmds), Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "show available commands",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.FromID), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
		},
	})

	byName := map[string]*Command{}
	order := make([]*Command, 0, len(cmds))
	for i := range cmds {
		c := &cmds[i]
		name := normalizeCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		order = append(order, c)
		for _, a := range c.Aliases {
			if a = normalizeCommand(a); a != "" {
				if _, taken := byName[a]; !taken {
					byName[a] = c
				}
			}
		}
	}
	routes := map[string]CallbackRoute{}
	for _, r := range cbs {
		s, a := strings.TrimSpace(r.Scope), strings.TrimSpace(r.Action)
		if s == "" || a == "" || r.Handle == nil {
			continue
		}
		routes[s+":"+a] = r
	}

	m.mu.Lock()
	m.cmds = byName
	m.order = order
	m.callbacks = routes
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := menuFor(order)
		go func() {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

// SetTextHandler routes plain (non-command) messages, used by multi-step
// conversations. A nil handler ignores them.
func (m *Manager) SetTextHandler(h HandlerFunc) {
	m.mu.Lock()
	m.text = h
	m.mu.Unlock()
}

// Supervisor exposes the dispatch workers for /status (nil when stopped).
func (m *Manager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.sup
}

// normalizeCommand lowercases and strips a leading "/" and a "@botname"
// suffix.
func normalizeCommand(s string) string {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "/"))
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	return s
}
