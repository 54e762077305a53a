// Package parser extracts medication schedules from free text by asking
// Gemini for a JSON array and validating every entry it returns.
package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"pillbot/internal/dose"
	logx "pillbot/pkg/logx"
)

var (
	// ErrNothingParsed means the model understood the request but found no
	// schedule in the text.
	ErrNothingParsed = errors.New("parser: no schedule found in text")
	ErrNotConfigured = errors.New("parser: api key not configured")
)

type Config struct {
	APIKey   string
	Model    string
	Endpoint string // base URL override, e.g. https://generativelanguage.googleapis.com
	Timeout  time.Duration
}

// Parser turns a conversation (oldest message first) into schedules for
// owner. today anchors relative dates such as "starting tomorrow".
type Parser interface {
	Parse(ctx context.Context, owner int64, today dose.Date, history []string) ([]dose.Schedule, error)
}

type Gemini struct {
	cfg     Config
	client  *genai.Client
	initErr error
	log     logx.Logger
}

// NewGemini builds the client up front. Without an API key no client is
// created and Parse reports ErrNotConfigured.
func NewGemini(cfg Config, log logx.Logger) *Gemini {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	g := &Gemini{cfg: cfg, log: log}
	if cfg.APIKey == "" {
		return g
	}
	g.client, g.initErr = genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL(cfg.Endpoint)},
	})
	if g.initErr != nil {
		g.initErr = fmt.Errorf("gemini client: %w", g.initErr)
	}
	return g
}

// baseURL keeps an empty endpoint empty so the SDK default applies.
func baseURL(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || strings.HasSuffix(endpoint, "/") {
		return endpoint
	}
	return endpoint + "/"
}

func (g *Gemini) Parse(ctx context.Context, owner int64, today dose.Date, history []string) ([]dose.Schedule, error) {
	if g.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if g.initErr != nil {
		return nil, g.initErr
	}
	text, err := g.generate(ctx, Prompt(today, history))
	if err != nil {
		return nil, err
	}
	return Decode(owner, text)
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini: empty response")
	}
	g.log.Debug("gemini generate ok", logx.String("model", g.cfg.Model), logx.Duration("took", time.Since(start)))
	return text, nil
}

// Decode validates model output: an optional Markdown code fence around a
// JSON array of schedules. An empty array is ErrNothingParsed.
func Decode(owner int64, text string) ([]dose.Schedule, error) {
	text = stripFences(text)
	var wire []dose.WireSchedule
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return nil, fmt.Errorf("parser: model output is not a schedule array: %w", err)
	}
	if len(wire) == 0 {
		return nil, ErrNothingParsed
	}
	out := make([]dose.Schedule, 0, len(wire))
	for i, w := range wire {
		s, err := dose.FromWire(owner, w)
		if err != nil {
			return nil, fmt.Errorf("parser: schedule %d: %w", i+1, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
