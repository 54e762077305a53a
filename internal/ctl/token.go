package ctl

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pillbot/internal/config"
	"pillbot/internal/httpapi"
)

type TokenCmd struct {
	Owner int64  `arg:"" help:"Telegram user id the token is scoped to."`
	TTL   string `help:"Token lifetime; defaults to http_api.token_ttl, then 30 days."`
}

func (c *TokenCmd) Run(ctx *Context) error {
	secret := strings.TrimSpace(ctx.Cfg.HTTPAPI.JWTSecret)
	if secret == "" {
		return errors.New("http_api.jwt_secret is not set")
	}
	ttl := config.DurationOr(ctx.Cfg.HTTPAPI.TokenTTL, 30*24*time.Hour)
	if strings.TrimSpace(c.TTL) != "" {
		d, err := config.ParseDurationField("--ttl", c.TTL)
		if err != nil {
			return err
		}
		ttl = d
	}
	tok, err := httpapi.IssueToken([]byte(secret), c.Owner, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, tok)
	return nil
}
