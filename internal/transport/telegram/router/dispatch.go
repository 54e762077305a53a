package router

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	rtsup "pillbot/internal/runtime/supervisor"
	kit "pillbot/internal/transport"
	logx "pillbot/pkg/logx"
)

const shardQueue = 64

type job struct {
	handler HandlerFunc
	timeout time.Duration
	req     *Request
	after   func(ctx context.Context)
}

// DispatchLoop consumes updates until ctx ends or updates closes.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.runMu.Lock()
	m.sup = sup
	m.runMu.Unlock()

	shards := make([]chan job, m.workers)
	for i := range shards {
		ch := make(chan job, shardQueue)
		shards[i] = ch
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case j, ok := <-ch:
					if !ok {
						return nil
					}
					m.runJob(c, j)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second), rtsup.WithPublishFirstError(true))
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers))

	defer func() {
		for _, ch := range shards {
			close(ch)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.runMu.Lock()
		m.sup = nil
		m.runMu.Unlock()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			j, chat, ok := m.route(ctx, up)
			if !ok {
				continue
			}
			shard := shards[shardFor(chat, len(shards))]
			select {
			case shard <- j:
			default:
				m.log.Warn("dispatch shard full; update dropped", logx.Int64("chat_id", chat))
				if up.Callback != nil {
					_ = m.adapter.AnswerCallback(ctx, up.Callback.ID, "busy, try again")
				} else {
					_, _ = m.adapter.SendText(ctx, j.req.Chat, "I'm busy right now, please try again.", nil)
				}
			}
		}
	}
}

func shardFor(chat int64, n int) int {
	if chat < 0 {
		chat = -chat
	}
	return int(chat % int64(n))
}

func (m *Manager) runJob(ctx context.Context, j job) {
	h := Chain(j.handler, MWPanicRecover(m.log), MWRequestLog(), MWTimeout(j.timeout))
	_ = h(ctx, j.req)
	if j.after != nil {
		j.after(ctx)
	}
}

// route resolves an update to a job. It answers access denials and unknown
// commands inline and reports ok=false for them.
func (m *Manager) route(ctx context.Context, up kit.Update) (job, int64, bool) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return job{}, 0, false
		}
		return m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		if up.Callback == nil {
			return job{}, 0, false
		}
		return m.routeCallback(ctx, up)
	}
	return job{}, 0, false
}

func (m *Manager) newRequest(up kit.Update, chat kit.ChatTarget, from int64, name string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: name,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", name),
		),
	}
}

func (m *Manager) routeMessage(ctx context.Context, up kit.Update) (job, int64, bool) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)

	if !strings.HasPrefix(text, "/") {
		m.mu.RLock()
		h := m.text
		m.mu.RUnlock()
		if h == nil || text == "" || !m.permitted(AccessAllowed, msg.FromID) {
			return job{}, 0, false
		}
		req := m.newRequest(up, chat, msg.FromID, "text")
		req.FromName = msg.FromFirstName
		req.Text = text
		return job{handler: h, req: req}, msg.ChatID, true
	}

	parts := tokenizeCommandLine(text)
	name := normalizeCommand(parts[0])
	m.mu.RLock()
	cmd := m.cmds[name]
	m.mu.RUnlock()
	if cmd == nil {
		_, _ = m.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		return job{}, 0, false
	}
	if !m.permitted(cmd.Access, msg.FromID) {
		_, _ = m.adapter.SendText(ctx, chat, "Sorry, you are not allowed to use this command.", nil)
		return job{}, 0, false
	}
	req := m.newRequest(up, chat, msg.FromID, cmd.Name)
	req.FromName = msg.FromFirstName
	req.Text = text
	req.Args = parts[1:]
	return job{handler: cmd.Handle, timeout: cmd.Timeout, req: req}, msg.ChatID, true
}

func (m *Manager) routeCallback(ctx context.Context, up kit.Update) (job, int64, bool) {
	cb := up.Callback
	parts := strings.SplitN(cb.Data, ":", 3)
	if len(parts) < 2 {
		return job{}, 0, false
	}
	key := parts[0] + ":" + parts[1]
	m.mu.RLock()
	route, ok := m.callbacks[key]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return job{}, 0, false
	}
	if !m.permitted(route.Access, cb.FromID) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return job{}, 0, false
	}
	req := m.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, "cb:"+key)
	if len(parts) == 3 {
		req.Payload = parts[2]
	}
	// Clear the client's loading state once the handler is done.
	after := func(c context.Context) { _ = m.adapter.AnswerCallback(c, cb.ID, "") }
	return job{handler: route.Handle, timeout: route.Timeout, req: req, after: after}, cb.ChatID, true
}
