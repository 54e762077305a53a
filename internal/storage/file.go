package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"pillbot/internal/dose"
	logx "pillbot/pkg/logx"
)

// fileStore keeps everything in memory and persists through an append-only
// journal that is compacted into a snapshot every compactEvery writes.
//
// Files:
//   - <prefix>.snapshot.json
//   - <prefix>.journal.jsonl
//
// The store mutex makes InsertTaken's check-and-append atomic.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	state        fileState
	writes       int
	compactEvery int
}

type fileState struct {
	NextID    int64                 `json:"next_id"`
	Schedules []dose.StoredSchedule `json:"schedules"`
	Taken     map[string]ledgerRow  `json:"taken"` // slot key -> row
	Dedup     map[string]int64      `json:"dedup"` // key -> until unix milli
}

type journalOp struct {
	Op       string               `json:"op"`
	Schedule *dose.StoredSchedule `json:"schedule,omitempty"`
	OwnerID  int64                `json:"owner_id,omitempty"`
	Name     string               `json:"name,omitempty"`
	Taken    *ledgerRow           `json:"taken,omitempty"`
	Key      string               `json:"key,omitempty"`
	Until    int64                `json:"until,omitempty"`
}

const (
	opScheduleAdd = "schedule.add"
	opScheduleDel = "schedule.del"
	opTaken       = "taken"
	opDedup       = "dedup"
)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		state:        newFileState(),
		compactEvery: 1000,
	}
	if err := loadSnapshot(s.snapshotPath, &s.state); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	journalPath := prefix + ".journal.jsonl"
	if err := replayJournal(journalPath, &s.state); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	pruneExpiredDedup(s.state.Dedup)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	return s, nil
}

func newFileState() fileState {
	return fileState{Taken: map[string]ledgerRow{}, Dedup: map[string]int64{}}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) ListSchedules(_ context.Context, ownerID int64) ([]dose.StoredSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dose.StoredSchedule, 0, len(s.state.Schedules))
	for _, r := range s.state.Schedules {
		if ownerID == dose.AllOwners || r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fileStore) InsertSchedule(_ context.Context, sc dose.Schedule) error {
	row, err := dose.Encode(sc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.state.Schedules {
		if r.OwnerID == row.OwnerID && r.Name == row.Name {
			return fmt.Errorf("%w: %q", dose.ErrScheduleExists, row.Name)
		}
	}
	row.ID = s.state.NextID + 1
	return s.commitLocked(journalOp{Op: opScheduleAdd, Schedule: &row})
}

func (s *fileStore) DeleteSchedule(_ context.Context, ownerID int64, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.state.Schedules {
		if r.OwnerID == ownerID && r.Name == name {
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.commitLocked(journalOp{Op: opScheduleDel, OwnerID: ownerID, Name: name}); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *fileStore) ListTaken(_ context.Context, ownerID int64, day dose.Date) (dose.TakenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	date := day.String()
	out := dose.TakenSet{}
	for _, r := range s.state.Taken {
		if r.OwnerID != ownerID || r.Date != date {
			continue
		}
		tod, err := dose.ParseTimeOfDay(r.Time)
		if err != nil {
			continue
		}
		out[dose.TakenKey{Name: r.Name, Time: tod}] = struct{}{}
	}
	return out, nil
}

func (s *fileStore) InsertTaken(_ context.Context, rec dose.TakenRecord) error {
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
	key := rec.Slot.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.state.Taken[key]; dup {
		return dose.ErrAlreadyLogged
	}
	return s.commitLocked(journalOp{Op: opTaken, Key: key, Taken: &row})
}

func (s *fileStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	op := journalOp{Op: opDedup, Key: key, Until: until.UnixMilli()}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(op)
}

func (s *fileStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.state.Dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// commitLocked journals op, applies it to memory and compacts when due.
// Memory is only touched after the journal write succeeded.
func (s *fileStore) commitLocked(op journalOp) error {
	if s.journal == nil {
		return dose.Unavailable("append journal", errors.New("store closed"))
	}
	if err := json.NewEncoder(s.journal).Encode(op); err != nil {
		return dose.Unavailable("append journal", err)
	}
	applyOp(&s.state, op)
	s.writes++
	if s.compactEvery > 0 && s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	pruneExpiredDedup(s.state.Dedup)

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.state); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func applyOp(st *fileState, op journalOp) {
	switch op.Op {
	case opScheduleAdd:
		if op.Schedule == nil {
			return
		}
		st.Schedules = append(st.Schedules, *op.Schedule)
		if op.Schedule.ID > st.NextID {
			st.NextID = op.Schedule.ID
		}
	case opScheduleDel:
		kept := st.Schedules[:0]
		for _, r := range st.Schedules {
			if r.OwnerID == op.OwnerID && r.Name == op.Name {
				continue
			}
			kept = append(kept, r)
		}
		st.Schedules = kept
	case opTaken:
		if op.Taken != nil && op.Key != "" {
			st.Taken[op.Key] = *op.Taken
		}
	case opDedup:
		if op.Key != "" {
			st.Dedup[op.Key] = op.Until
		}
	}
}

func loadSnapshot(path string, out *fileState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var st fileState
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return err
	}
	if st.Taken == nil {
		st.Taken = map[string]ledgerRow{}
	}
	if st.Dedup == nil {
		st.Dedup = map[string]int64{}
	}
	sort.Slice(st.Schedules, func(i, j int) bool { return st.Schedules[i].ID < st.Schedules[j].ID })
	*out = st
	return nil
}

func replayJournal(path string, st *fileState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var op journalOp
		if err := json.Unmarshal(sc.Bytes(), &op); err != nil {
			continue
		}
		applyOp(st, op)
	}
	return sc.Err()
}

func pruneExpiredDedup(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}
