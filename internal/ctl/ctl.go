// Package ctl implements pillctl, the operator CLI that works directly on
// the bot's store: inspecting and editing schedules, resolving phases,
// dry-running the reminder tick and minting HTTP API tokens.
package ctl

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"pillbot/internal/config"
	"pillbot/internal/dose"
	"pillbot/pkg/clock"
	logx "pillbot/pkg/logx"
)

// Context is bound into every command's Run.
type Context struct {
	Ctx   context.Context
	Store dose.Store
	Clock clock.Clock
	Cfg   *config.Config
	Out   io.Writer
	Log   logx.Logger
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func render(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.String())
}

// parseAt reads --at as RFC 3339 or "YYYY-MM-DD HH:MM" in loc. Empty is now.
func parseAt(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(now.Location()), nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: want RFC 3339 or \"YYYY-MM-DD HH:MM\", got %q", raw)
	}
	return t, nil
}

func phaseSpan(p dose.Phase) string {
	if p.Ongoing() {
		return "ongoing"
	}
	return fmt.Sprintf("%dd", p.Days)
}
