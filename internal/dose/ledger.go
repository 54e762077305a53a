package dose

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Ledger is the append-only record of taken dose slots.
type Ledger struct {
	store   Store
	onTaken func(TakenRecord)
}

type LedgerOption func(*Ledger)

// WithTakenHook registers fn to run after each successful RecordTaken.
func WithTakenHook(fn func(TakenRecord)) LedgerOption {
	return func(l *Ledger) { l.onTaken = fn }
}

func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: store}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) HasBeenTaken(ctx context.Context, slot Slot) (bool, error) {
	if err := checkOwner(slot.OwnerID); err != nil {
		return false, err
	}
	set, err := l.store.ListTaken(ctx, slot.OwnerID, slot.Date)
	if err != nil {
		return false, Unavailable("list taken", err)
	}
	return set.Has(slot.Name, slot.Time), nil
}

// RecordTaken logs slot as taken at the given instant. A second call for the
// same slot fails with ErrAlreadyLogged; the store arbitrates races.
func (l *Ledger) RecordTaken(ctx context.Context, slot Slot, at time.Time) error {
	if err := checkOwner(slot.OwnerID); err != nil {
		return err
	}
	slot.Name = strings.TrimSpace(slot.Name)
	if slot.Name == "" || slot.Date.IsZero() || !slot.Time.Valid() {
		return malformed("incomplete slot %s", slot.Key())
	}
	rec := TakenRecord{Slot: slot, LoggedAt: at}
	if err := l.store.InsertTaken(ctx, rec); err != nil {
		if errors.Is(err, ErrAlreadyLogged) {
			return err
		}
		return Unavailable("insert taken", err)
	}
	if l.onTaken != nil {
		l.onTaken(rec)
	}
	return nil
}
