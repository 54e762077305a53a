package dose

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedSchedule marks stored schedule data that cannot be decoded
	// or resolved. Batch callers skip the schedule and keep going.
	ErrMalformedSchedule = errors.New("malformed schedule data")
	// ErrAlreadyLogged is returned when a dose slot already has a taken record.
	ErrAlreadyLogged = errors.New("dose already logged")
	// ErrScheduleExists is returned when an owner already has a schedule
	// with the same name.
	ErrScheduleExists = errors.New("schedule already exists")
	// ErrNotFound is returned when a lookup or delete matched nothing.
	ErrNotFound = errors.New("schedule not found")
	// ErrInvalidOwner rejects owner ids that are not positive. Zero is
	// reserved for AllOwners and never names a person.
	ErrInvalidOwner = errors.New("invalid owner id")
	// ErrUnavailable wraps failures reaching the persistence store.
	ErrUnavailable = errors.New("persistence unavailable")
)

// Unavailable wraps err as ErrUnavailable unless it already classifies as
// one of the package sentinels.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrAlreadyLogged) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidOwner) || errors.Is(err, ErrScheduleExists) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedSchedule, fmt.Sprintf(format, args...))
}

// ValidOwner reports whether id can name a schedule owner.
func ValidOwner(id int64) bool { return id > 0 }

func checkOwner(id int64) error {
	if !ValidOwner(id) {
		return fmt.Errorf("%w: %d", ErrInvalidOwner, id)
	}
	return nil
}
