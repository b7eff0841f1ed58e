package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"courierdb/pkg/clock"
	"courierdb/pkg/keys"
	"courierdb/pkg/logger"
	"courierdb/pkg/models"
	"courierdb/pkg/store"
)

// localIDPrefix marks placeholder ids so they can never collide with
// store-assigned uuids.
const localIDPrefix = "local-"

// Engine bridges a user's optimistic send and the durable store. Each
// conversation has exactly one canonical ordered view; a pending send
// appears in it as a single placeholder entry that is either swapped
// in place for the store's message or removed, never both present.
type Engine struct {
	st  *store.Store
	clk clock.Clock

	mu    sync.Mutex
	views map[string]*view
}

// view is the visible ordering of one conversation: canonical
// messages plus live placeholders.
type view struct {
	mu      sync.Mutex
	entries []models.Message
}

// Handle correlates one placeholder with its eventual commit. One
// BeginSend produces exactly one handle; handles resolve
// independently of each other.
type Handle struct {
	LocalID  string
	ConvKey  string
	sender   string
	receiver string
	draft    store.Draft

	mu       sync.Mutex
	resolved bool
}

func New(st *store.Store, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{st: st, clk: clk, views: make(map[string]*view)}
}

func (e *Engine) viewFor(convKey string) *view {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.views[convKey]; ok {
		return v
	}
	v := &view{}
	e.views[convKey] = v
	return v
}

// BeginSend materializes a locally visible placeholder with a
// client-generated id, status "sending" and best-effort preview URLs
// for media that has not been uploaded yet. The draft itself is
// submitted unchanged by CommitSend.
func (e *Engine) BeginSend(sender, receiver string, d store.Draft) *Handle {
	convKey := keys.ConvKey(sender, receiver)
	localID := localIDPrefix + uuid.NewString()
	now := e.clk.Now().UnixNano()

	preview := make([]models.Media, 0, len(d.Media))
	for _, m := range d.Media {
		if m.URL == "" {
			m.URL = "preview://" + m.OriginalName
		}
		preview = append(preview, m)
	}
	placeholder := models.Message{
		ID:           localID,
		Conversation: convKey,
		Sender:       sender,
		Receiver:     receiver,
		Text:         d.Text,
		Media:        preview,
		ReplyTo:      d.ReplyTo,
		Status:       models.StatusSending,
		CreatedTS:    now,
		UpdatedTS:    now,
	}

	v := e.viewFor(convKey)
	v.mu.Lock()
	v.entries = append(v.entries, placeholder)
	v.mu.Unlock()

	logger.Debug("send_begun", "conversation", convKey, "local_id", localID)
	return &Handle{
		LocalID:  localID,
		ConvKey:  convKey,
		sender:   sender,
		receiver: receiver,
		draft:    d,
	}
}

// CommitSend submits the draft to the store. On success the
// placeholder is replaced in place by the canonical message; on
// failure it is removed entirely and the failure is returned without
// retry. There is no cancellation once submitted: the call resolves
// to exactly one of the two outcomes.
func (e *Engine) CommitSend(ctx context.Context, h *Handle) (models.Message, error) {
	h.mu.Lock()
	if h.resolved {
		h.mu.Unlock()
		return models.Message{}, fmt.Errorf("handle %s already resolved", h.LocalID)
	}
	h.resolved = true
	h.mu.Unlock()

	m, err := e.st.Append(ctx, h.sender, h.receiver, h.draft)
	v := e.viewFor(h.ConvKey)
	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.remove(h.LocalID)
		logger.Warn("send_rolled_back", "conversation", h.ConvKey, "local_id", h.LocalID, "error", err)
		return models.Message{}, err
	}
	v.replace(h.LocalID, m)
	logger.Info("send_committed", "conversation", h.ConvKey, "local_id", h.LocalID, "id", m.ID)
	return m, nil
}

// Refresh reloads the canonical messages from the store while keeping
// live placeholders at the tail of the view, in begin order.
func (e *Engine) Refresh(ctx context.Context, convKey string) error {
	msgs, _, err := e.st.List(ctx, convKey, store.ListOptions{})
	if err != nil {
		return err
	}
	v := e.viewFor(convKey)
	v.mu.Lock()
	defer v.mu.Unlock()
	var pending []models.Message
	for _, entry := range v.entries {
		if entry.Status == models.StatusSending {
			pending = append(pending, entry)
		}
	}
	v.entries = append(msgs, pending...)
	return nil
}

// Snapshot returns the current visible ordering of a conversation.
func (e *Engine) Snapshot(convKey string) []models.Message {
	v := e.viewFor(convKey)
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Message, len(v.entries))
	copy(out, v.entries)
	return out
}

// remove drops the entry with the given id. Position of all other
// entries is preserved.
func (v *view) remove(id string) {
	for i, entry := range v.entries {
		if entry.ID == id {
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			return
		}
	}
}

// replace swaps the entry with the given id for m at the same
// position.
func (v *view) replace(id string, m models.Message) {
	for i, entry := range v.entries {
		if entry.ID == id {
			v.entries[i] = m
			return
		}
	}
	// placeholder vanished (view refreshed concurrently); append so
	// the canonical message is still visible
	v.entries = append(v.entries, m)
}
