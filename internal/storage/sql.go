package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"pillbot/internal/dose"
	logx "pillbot/pkg/logx"
)

// sqlStore implements Store over sqlx for both sqlite and postgres. Queries
// are written with ? placeholders and rebound for the driver.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

type takenRow struct {
	Name string `db:"name"`
	Time string `db:"taken_time"`
}

type ledgerRow struct {
	OwnerID  int64  `db:"user_id"`
	Name     string `db:"name"`
	Date     string `db:"taken_date"`
	Time     string `db:"taken_time"`
	LoggedAt string `db:"logged_at"`
}

func (s *sqlStore) migrate(ctx context.Context, ddl string) error {
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return dose.Unavailable("migrate", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) ListSchedules(ctx context.Context, ownerID int64) ([]dose.StoredSchedule, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT id, user_id, name, start_date, schedule_json FROM schedules`
	args := []any{}
	if ownerID != dose.AllOwners {
		q += ` WHERE user_id = ?`
		args = append(args, ownerID)
	}
	q += ` ORDER BY id`

	var rows []dose.StoredSchedule
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, dose.Unavailable("select schedules", err)
	}
	return rows, nil
}

func (s *sqlStore) InsertSchedule(ctx context.Context, sc dose.Schedule) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	row, err := dose.Encode(sc)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO schedules(user_id, name, start_date, schedule_json)
		 VALUES(:user_id, :name, :start_date, :schedule_json)
		 ON CONFLICT(user_id, name) DO NOTHING`, row)
	if err != nil {
		return dose.Unavailable("insert schedule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dose.Unavailable("insert schedule", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", dose.ErrScheduleExists, sc.Name)
	}
	return nil
}

func (s *sqlStore) DeleteSchedule(ctx context.Context, ownerID int64, name string) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM schedules WHERE user_id = ? AND name = ?`), ownerID, name)
	if err != nil {
		return 0, dose.Unavailable("delete schedule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dose.Unavailable("delete schedule", err)
	}
	return int(n), nil
}

func (s *sqlStore) ListTaken(ctx context.Context, ownerID int64, day dose.Date) (dose.TakenSet, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var rows []takenRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT name, taken_time FROM tracking WHERE user_id = ? AND taken_date = ?`),
		ownerID, day.String())
	if err != nil {
		return nil, dose.Unavailable("select taken", err)
	}
	out := make(dose.TakenSet, len(rows))
	for _, r := range rows {
		tod, err := dose.ParseTimeOfDay(r.Time)
		if err != nil {
			s.log.Warn("ignoring ledger row with bad time", logx.Int64("owner", ownerID), logx.String("name", r.Name), logx.Err(err))
			continue
		}
		out[dose.TakenKey{Name: r.Name, Time: tod}] = struct{}{}
	}
	return out, nil
}

// InsertTaken relies on UNIQUE(user_id, name, taken_date, taken_time): the
// losing side of a race inserts zero rows.
func (s *sqlStore) InsertTaken(ctx context.Context, rec dose.TakenRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	at := rec.LoggedAt
	if at.IsZero() {
		at = time.Now()
	}
	row := ledgerRow{
		OwnerID:  rec.Slot.OwnerID,
		Name:     rec.Slot.Name,
		Date:     rec.Slot.Date.String(),
		Time:     rec.Slot.Time.String(),
		LoggedAt: at.Format(time.RFC3339Nano),
	}
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO tracking(user_id, name, taken_date, taken_time, logged_at)
		 VALUES(:user_id, :name, :taken_date, :taken_time, :logged_at)
		 ON CONFLICT(user_id, name, taken_date, taken_time) DO NOTHING`, row)
	if err != nil {
		return dose.Unavailable("insert taken", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dose.Unavailable("insert taken", err)
	}
	if n == 0 {
		return dose.ErrAlreadyLogged
	}
	return nil
}

func (s *sqlStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO notify_dedup(key, until_ms) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET until_ms = excluded.until_ms`),
		key, until.UnixMilli(),
	)
	if err == nil && s.pruneEvery > 0 && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.pruneExpired(pctx)
		cancel()
	}
	return err
}

func (s *sqlStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.GetContext(ctx, &ms, s.db.Rebind(`SELECT until_ms FROM notify_dedup WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqlStore) pruneExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM notify_dedup WHERE until_ms < ?`), time.Now().UnixMilli())
	return err
}
