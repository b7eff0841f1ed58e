package guard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"courierdb/pkg/clock"
	"courierdb/pkg/logger"
	"courierdb/pkg/models"
	"courierdb/pkg/store"
)

// DefaultEditWindow is how long after creation a sender may still
// rewrite a message's text.
const DefaultEditWindow = 10 * time.Minute

// Guard enforces ownership and the time-boxed edit window before any
// text mutation reaches the store. It is the only component that
// touches Text/Edited/EditedTS.
type Guard struct {
	st     *store.Store
	clk    clock.Clock
	window time.Duration
}

// New builds a Guard. A zero window falls back to DefaultEditWindow;
// a nil clock falls back to the system clock.
func New(st *store.Store, clk clock.Clock, window time.Duration) *Guard {
	if clk == nil {
		clk = clock.System{}
	}
	if window <= 0 {
		window = DefaultEditWindow
	}
	return &Guard{st: st, clk: clk, window: window}
}

// Window returns the configured edit window.
func (g *Guard) Window() time.Duration { return g.window }

// Clock returns the injected clock, so render paths evaluate CanEdit
// against the same time source the guard enforces with.
func (g *Guard) Clock() clock.Clock { return g.clk }

// CanEdit is the pure window predicate: the requester must be the
// sender and `now` must fall within the window after creation. No
// caching: the window expires passively, so callers re-evaluate on
// every render tick.
func (g *Guard) CanEdit(m models.Message, requester string, now time.Time) bool {
	return CanEdit(m, requester, now, g.window)
}

// CanEdit reports whether requester may edit m at instant now given
// the window.
func CanEdit(m models.Message, requester string, now time.Time, window time.Duration) bool {
	if requester == "" || requester != m.Sender {
		return false
	}
	created := time.Unix(0, m.CreatedTS)
	return !now.Before(created) && now.Sub(created) <= window
}

// ApplyEdit re-checks the predicate against the injected clock and
// rewrites the message text. Media and ReplyTo are untouched; Edited,
// EditedTS and UpdatedTS advance together.
func (g *Guard) ApplyEdit(ctx context.Context, id, requester, newText string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	m, storageKey, err := g.st.GetByID(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	now := g.clk.Now()
	if requester != m.Sender {
		return models.Message{}, fmt.Errorf("only the sender may edit a message: %w", models.ErrForbidden)
	}
	if !g.CanEdit(m, requester, now) {
		return models.Message{}, models.ErrEditWindowExpired
	}
	trimmed := strings.TrimSpace(newText)
	if trimmed == "" {
		return models.Message{}, models.ErrEmptyText
	}

	m.Text = newText
	m.Edited = true
	m.EditedTS = now.UnixNano()
	m.UpdatedTS = now.UnixNano()
	if err := g.st.ReplaceAt(storageKey, m); err != nil {
		return models.Message{}, err
	}
	logger.Info("message_edited", "conversation", m.Conversation, "id", m.ID, "by", requester)
	return m, nil
}

// Delete removes a message through the store's ownership check.
// Deletion has no time window; it is allowed whenever editing no
// longer is.
func (g *Guard) Delete(ctx context.Context, id, requester string) error {
	return g.st.Delete(ctx, id, requester)
}
