package dose

import (
	"context"
	"errors"
	"sync"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	schedules []StoredSchedule
	taken     map[Slot]TakenRecord
	failList  error
	failTaken error
}

func newMemStore() *memStore {
	return &memStore{taken: map[Slot]TakenRecord{}}
}

func (m *memStore) ListSchedules(_ context.Context, ownerID int64) ([]StoredSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	var out []StoredSchedule
	for _, s := range m.schedules {
		if ownerID == AllOwners || s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) InsertSchedule(_ context.Context, s Schedule) error {
	row, err := Encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for _, r := range m.schedules {
		if r.OwnerID == row.OwnerID && r.Name == row.Name {
			m.mu.Unlock()
			return ErrScheduleExists
		}
	}
	m.mu.Unlock()
	m.addRow(row)
	return nil
}

func (m *memStore) addRow(row StoredSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	row.ID = m.nextID
	m.schedules = append(m.schedules, row)
}

func (m *memStore) DeleteSchedule(_ context.Context, ownerID int64, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.schedules[:0]
	n := 0
	for _, s := range m.schedules {
		if s.OwnerID == ownerID && s.Name == name {
			n++
			continue
		}
		kept = append(kept, s)
	}
	m.schedules = kept
	return n, nil
}

func (m *memStore) ListTaken(_ context.Context, ownerID int64, day Date) (TakenSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTaken != nil {
		return nil, m.failTaken
	}
	out := TakenSet{}
	for slot := range m.taken {
		if slot.OwnerID == ownerID && slot.Date == day {
			out[TakenKey{Name: slot.Name, Time: slot.Time}] = struct{}{}
		}
	}
	return out, nil
}

func (m *memStore) InsertTaken(_ context.Context, rec TakenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTaken != nil {
		return m.failTaken
	}
	if _, ok := m.taken[rec.Slot]; ok {
		return ErrAlreadyLogged
	}
	m.taken[rec.Slot] = rec
	return nil
}

var errStoreDown = errors.New("connection refused")
