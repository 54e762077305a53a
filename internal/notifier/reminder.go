package notifier

import (
	"context"
	"fmt"
	"time"

	"pillbot/internal/dose"
	kit "pillbot/internal/transport"
	"pillbot/pkg/tgui"
)

const (
	TakeScope  = "dose"
	TakeAction = "take"
	// MarkAction is the take button of the day view; the handler refreshes
	// the view instead of confirming in place.
	MarkAction = "mark"
	// reminderPriority stays below the alert prefixes.
	reminderPriority = 5

	// TokenTTL is how long an oversized take button stays valid.
	TokenTTL = 24 * time.Hour
)

// Reminders renders matcher reminders as chat messages with a "Mark as
// Taken" button and queues them on a Service. It implements
// dose.ReminderSink.
type Reminders struct {
	n      *Service
	tokens *tgui.TokenStore
}

// NewReminders wires the sink. tokens holds button payloads too long for
// callback data; it may be nil, in which case such reminders carry no button.
func NewReminders(n *Service, tokens *tgui.TokenStore) *Reminders {
	return &Reminders{n: n, tokens: tokens}
}

func ReminderText(r dose.Reminder) string {
	return fmt.Sprintf("🔔 Reminder: It's time for your '%s'!\n\nDosage/Task: %s", r.Slot.Name, r.Dose)
}

// TakeData builds the callback data of the reminder's take button for slot.
func TakeData(slot dose.Slot, tokens *tgui.TokenStore) (string, bool) {
	return SlotData(TakeAction, slot, tokens)
}

// SlotData packs slot into "dose:<action>:<payload>". Payloads over the
// callback limit are swapped for a token from tokens.
func SlotData(action string, slot dose.Slot, tokens *tgui.TokenStore) (string, bool) {
	if data, err := tgui.Data(TakeScope, action, slot.Compact()); err == nil {
		return data, true
	}
	if tokens == nil {
		return "", false
	}
	data, err := tgui.Data(TakeScope, action, tokens.Put(slot.Compact()))
	return data, err == nil
}

// TakeSlot resolves a take-button payload back to the slot it names.
func TakeSlot(owner int64, payload string, tokens *tgui.TokenStore) (dose.Slot, error) {
	if tgui.IsToken(payload) {
		if tokens == nil {
			return dose.Slot{}, fmt.Errorf("take payload: %w", dose.ErrNotFound)
		}
		v, ok := tokens.Get(payload)
		if !ok {
			return dose.Slot{}, fmt.Errorf("take payload expired: %w", dose.ErrNotFound)
		}
		payload = v
	}
	return dose.ParseCompactSlot(owner, payload)
}

func (r *Reminders) Remind(ctx context.Context, rem dose.Reminder) error {
	opt := &kit.SendOptions{DisablePreview: true}
	if data, ok := TakeData(rem.Slot, r.tokens); ok {
		opt.ReplyMarkupAdapter = tgui.NewInline().Row(tgui.Btn("✅ Mark as Taken", data)).Markup()
	}
	return r.n.Notify(ctx, kit.Notification{
		Channel:  "telegram",
		Priority: reminderPriority,
		Target:   kit.ChatTarget{ChatID: rem.Slot.OwnerID},
		Text:     ReminderText(rem),
		Options:  opt,
		DedupKey: "reminder:" + rem.Slot.Key(),
	})
}
