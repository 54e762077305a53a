package dose

import (
	"context"
	"errors"
)

// AllOwners passed to ListSchedules returns every owner's schedules. The
// per-owner helpers below reject it; LoadAllSchedules is the only way in.
const AllOwners int64 = 0

// Store is the persistence the core depends on.
//
// InsertTaken must enforce slot uniqueness atomically: of any number of
// concurrent inserts for one slot exactly one succeeds and the rest return
// ErrAlreadyLogged. InsertSchedule rejects a second schedule with the same
// owner and name with ErrScheduleExists. Connectivity failures are reported
// as ErrUnavailable.
type Store interface {
	ListSchedules(ctx context.Context, ownerID int64) ([]StoredSchedule, error)
	InsertSchedule(ctx context.Context, s Schedule) error
	DeleteSchedule(ctx context.Context, ownerID int64, name string) (int, error)
	ListTaken(ctx context.Context, ownerID int64, day Date) (TakenSet, error)
	InsertTaken(ctx context.Context, rec TakenRecord) error
}

// LoadSchedules lists and decodes an owner's schedules. Rows that fail to
// decode are returned in bad (each wrapping ErrMalformedSchedule) and skipped.
// ownerID must be a real owner; see ValidOwner.
func LoadSchedules(ctx context.Context, st Store, ownerID int64) (good []Schedule, bad []error, err error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, nil, err
	}
	return loadSchedules(ctx, st, ownerID)
}

// LoadAllSchedules is LoadSchedules across every owner, for operator tooling.
func LoadAllSchedules(ctx context.Context, st Store) (good []Schedule, bad []error, err error) {
	return loadSchedules(ctx, st, AllOwners)
}

func loadSchedules(ctx context.Context, st Store, ownerID int64) (good []Schedule, bad []error, err error) {
	rows, err := st.ListSchedules(ctx, ownerID)
	if err != nil {
		return nil, nil, Unavailable("list schedules", err)
	}
	for _, r := range rows {
		if ownerID != AllOwners && r.OwnerID != ownerID {
			continue
		}
		s, derr := r.Decode()
		if derr != nil {
			bad = append(bad, derr)
			continue
		}
		good = append(good, s)
	}
	return good, bad, nil
}

// DeleteSchedule removes every phase of the named schedule. A zero count is
// reported as ErrNotFound alongside the count.
func DeleteSchedule(ctx context.Context, st Store, ownerID int64, name string) (int, error) {
	if err := checkOwner(ownerID); err != nil {
		return 0, err
	}
	n, err := st.DeleteSchedule(ctx, ownerID, name)
	if err != nil {
		return 0, Unavailable("delete schedule", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

// IsOperational reports whether err is a store failure rather than an
// expected domain outcome.
func IsOperational(err error) bool {
	return err != nil && !errors.Is(err, ErrAlreadyLogged) && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrMalformedSchedule) &&
		!errors.Is(err, ErrInvalidOwner) && !errors.Is(err, ErrScheduleExists)
}
