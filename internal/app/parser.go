package app

import (
	"context"
	"sync/atomic"

	"pillbot/internal/dose"
	"pillbot/internal/parser"
	logx "pillbot/pkg/logx"
)

// liveParser lets a config reload swap the model client while a
// conversation holds a reference to the parser.
type liveParser struct {
	log logx.Logger
	cur atomic.Pointer[parser.Gemini]
}

func newLiveParser(cfg parser.Config, log logx.Logger) *liveParser {
	p := &liveParser{log: log}
	p.apply(cfg)
	return p
}

func (p *liveParser) apply(cfg parser.Config) {
	p.cur.Store(parser.NewGemini(cfg, p.log))
}

func (p *liveParser) Parse(ctx context.Context, owner int64, today dose.Date, history []string) ([]dose.Schedule, error) {
	return p.cur.Load().Parse(ctx, owner, today, history)
}

var _ parser.Parser = (*liveParser)(nil)
