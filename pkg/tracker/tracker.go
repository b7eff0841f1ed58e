package tracker

import (
	"context"
	"fmt"

	"courierdb/pkg/clock"
	"courierdb/pkg/logger"
	"courierdb/pkg/models"
	"courierdb/pkg/store"
)

// Tracker advances the per-message delivery state machine
// (sent -> delivered -> read). It is the only component that mutates
// Status after creation, it only moves forward, and it only acts for
// the message's receiver.
type Tracker struct {
	st  *store.Store
	clk clock.Clock
}

func New(st *store.Store, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.System{}
	}
	return &Tracker{st: st, clk: clk}
}

// MarkDelivered records that recipient's client has fetched the
// conversation: every inbound message still at "sent" becomes
// "delivered". Delivered is best-effort; callers treat failures as
// non-fatal to the fetch itself. Returns the number of transitions.
func (t *Tracker) MarkDelivered(ctx context.Context, convKey, recipient string) (int, error) {
	return t.advance(ctx, convKey, recipient, "", models.StatusDelivered, false)
}

// MarkRead records that recipient opened the conversation view: every
// inbound message at or before upToID (all of them when upToID is
// empty) that is not yet read becomes "read", in one batch commit
// that also resets the recipient's unread counter. Re-marking an
// already-read message is a no-op, not an error.
func (t *Tracker) MarkRead(ctx context.Context, convKey, recipient, upToID string) (int, error) {
	return t.advance(ctx, convKey, recipient, upToID, models.StatusRead, true)
}

// advance scans the conversation and lifts qualifying inbound
// messages to the target status. Regressions are rejected silently:
// a message already at or past the target is skipped, never rewound.
func (t *Tracker) advance(ctx context.Context, convKey, recipient, upToID string, target models.Status, resetUnread bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if recipient == "" {
		return 0, fmt.Errorf("recipient required: %w", models.ErrForbidden)
	}
	if upToID != "" {
		// the boundary message must be addressed to the caller; a
		// sender cannot acknowledge its own outbound traffic
		bound, _, err := t.st.GetByID(ctx, upToID)
		if err != nil {
			return 0, err
		}
		if bound.Receiver != recipient {
			return 0, fmt.Errorf("only the receiver may advance status: %w", models.ErrForbidden)
		}
		if bound.Conversation != convKey {
			return 0, fmt.Errorf("message %s is not in conversation %s: %w", upToID, convKey, models.ErrNotFound)
		}
	}

	kms, _, err := t.st.ListWithKeys(ctx, convKey, store.ListOptions{})
	if err != nil {
		return 0, err
	}
	now := t.clk.Now().UnixNano()
	var muts []store.KeyedMessage
	for _, km := range kms {
		m := km.Msg
		// the boundary stops the scan even when the record itself is
		// skipped, so a retried partial acknowledgment stays a no-op
		boundary := upToID != "" && m.ID == upToID
		// the caller's own outbound messages and records already at or
		// past the target are untouched, never rewound
		if m.Receiver == recipient && m.Status.Rank() < target.Rank() {
			m.Status = target
			m.UpdatedTS = now
			muts = append(muts, store.KeyedMessage{Key: km.Key, Msg: m})
		}
		if boundary {
			break
		}
	}
	if upToID == "" && len(muts) == 0 && !resetUnread {
		return 0, nil
	}
	reset := ""
	if resetUnread && upToID == "" {
		reset = recipient
	}
	if err := t.st.ReplaceBatch(convKey, muts, reset); err != nil {
		return 0, err
	}
	if resetUnread && upToID != "" {
		// partial acknowledgment: recompute rather than zero
		if err := t.recountUnread(ctx, convKey, recipient); err != nil {
			return 0, err
		}
	}
	if len(muts) > 0 {
		logger.Info("status_advanced", "conversation", convKey, "recipient", recipient, "to", string(target), "count", len(muts))
	}
	return len(muts), nil
}

// recountUnread rebuilds the unread counter from the records after a
// partial mark-read.
func (t *Tracker) recountUnread(ctx context.Context, convKey, recipient string) error {
	kms, _, err := t.st.ListWithKeys(ctx, convKey, store.ListOptions{})
	if err != nil {
		return err
	}
	var n uint64
	for _, km := range kms {
		if km.Msg.Receiver == recipient && !km.Msg.Read() {
			n++
		}
	}
	return t.st.SetUnread(convKey, recipient, n)
}
