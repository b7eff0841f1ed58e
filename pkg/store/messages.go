package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"courierdb/pkg/keys"
	"courierdb/pkg/logger"
	"courierdb/pkg/models"
	"courierdb/pkg/validation"
)

// Draft is the caller-supplied content of a new message. Everything
// else on models.Message is assigned by the store.
type Draft struct {
	Text    string         `json:"text,omitempty"`
	Media   []models.Media `json:"media,omitempty"`
	ReplyTo string         `json:"reply_to,omitempty"`
}

// KeyedMessage pairs a decoded message with its storage key. The key
// is needed by the guard and tracker to rewrite a record in place.
type KeyedMessage struct {
	Key string
	Msg models.Message
}

// ListOptions controls a List call. SinceID is an exclusive message-id
// cursor; AfterPos is the opaque position token returned as the next
// cursor by a previous page. Limit <= 0 means no limit.
type ListOptions struct {
	SinceID  string
	AfterPos string
	Limit    int
}

// Append validates and persists a new message, assigning its identity,
// sequence position and timestamps. The message record, id index,
// conversation meta, participant markers and the receiver's unread
// counter are committed in a single synced batch.
func (s *Store) Append(ctx context.Context, sender, receiver string, d Draft) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	if err := validation.ValidateParticipants(sender, receiver); err != nil {
		return models.Message{}, err
	}
	if err := validation.ValidateDraft(d.Text, d.Media); err != nil {
		return models.Message{}, err
	}
	ok, err := s.conns.Connected(ctx, sender, receiver)
	if err != nil {
		return models.Message{}, fmt.Errorf("connection check: %w", err)
	}
	if !ok {
		return models.Message{}, fmt.Errorf("no connection between participants: %w", models.ErrForbidden)
	}

	convKey := keys.ConvKey(sender, receiver)

	// ReplyTo is a weak reference: a missing target is tolerated (it
	// may have been deleted in flight), but a live target must belong
	// to the same conversation.
	if d.ReplyTo != "" {
		if target, _, terr := s.GetByID(ctx, d.ReplyTo); terr == nil {
			if target.Conversation != convKey {
				return models.Message{}, fmt.Errorf("reply target belongs to another conversation")
			}
		} else if !errors.Is(terr, models.ErrNotFound) {
			return models.Message{}, terr
		}
	}

	cs := s.convLock(convKey)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.seqLoaded {
		max, serr := s.maxSeq(convKey)
		if serr != nil {
			return models.Message{}, serr
		}
		cs.seq = max
		cs.seqLoaded = true
	}
	cs.seq++

	now := s.clk.Now().UnixNano()
	m := models.Message{
		ID:           uuid.NewString(),
		Conversation: convKey,
		Sender:       sender,
		Receiver:     receiver,
		Text:         d.Text,
		Media:        append([]models.Media(nil), d.Media...),
		ReplyTo:      d.ReplyTo,
		Status:       models.StatusSent,
		CreatedTS:    now,
		UpdatedTS:    now,
		Seq:          cs.seq,
	}

	data, err := json.Marshal(m)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	storageKey := keys.GenMessageKey(convKey, now, cs.seq)

	meta, err := s.metaForAppend(convKey, sender, receiver, m)
	if err != nil {
		return models.Message{}, err
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to marshal conversation meta: %w", err)
	}
	unread, err := s.Unread(convKey, receiver)
	if err != nil {
		return models.Message{}, err
	}

	b := s.db.NewBatch()
	defer b.Close()
	_ = b.Set([]byte(storageKey), data, nil)
	_ = b.Set([]byte(keys.GenMessageIdxKey(m.ID)), []byte(storageKey), nil)
	_ = b.Set([]byte(keys.GenConvMetaKey(convKey)), metaData, nil)
	_ = b.Set([]byte(keys.GenUserConvKey(sender, convKey)), []byte{'1'}, nil)
	_ = b.Set([]byte(keys.GenUserConvKey(receiver, convKey)), []byte{'1'}, nil)
	_ = b.Set([]byte(keys.GenUnreadKey(convKey, receiver)), encodeCount(unread+1), nil)
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("append_commit_failed", "conversation", convKey, "key", storageKey, "error", err)
		return models.Message{}, err
	}
	logger.Info("message_appended", "conversation", convKey, "id", m.ID, "seq", m.Seq)
	return m, nil
}

// List returns a page of messages in canonical (assignment) order and
// the position cursor for the next page ("" when the page was short).
// Listing has no side effects and is freely restartable.
func (s *Store) List(ctx context.Context, convKey string, opts ListOptions) ([]models.Message, string, error) {
	kms, next, err := s.ListWithKeys(ctx, convKey, opts)
	if err != nil {
		return nil, "", err
	}
	out := make([]models.Message, 0, len(kms))
	for _, km := range kms {
		out = append(out, km.Msg)
	}
	return out, next, nil
}

// ListWithKeys is List plus storage keys, for callers that rewrite
// records in place (tracker, guard).
func (s *Store) ListWithKeys(ctx context.Context, convKey string, opts ListOptions) ([]KeyedMessage, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	prefix := []byte(keys.MsgPrefix(convKey))
	lower := prefix
	if opts.SinceID != "" {
		k, err := s.storageKeyFor(opts.SinceID)
		if err != nil {
			return nil, "", err
		}
		// a cursor from another conversation would seed the scan
		// outside the prefix and silently return everything or nothing
		if parts, perr := keys.ParseMessageKey(k); perr != nil || parts.ConvKey != convKey {
			return nil, "", fmt.Errorf("message %s is not in conversation %s: %w", opts.SinceID, convKey, models.ErrNotFound)
		}
		// exclusive: start just past the cursor message
		lower = append([]byte(k), 0)
	} else if opts.AfterPos != "" {
		lower = append([]byte(keys.MsgPrefix(convKey)+opts.AfterPos), 0)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, "", err
	}
	defer iter.Close()

	var out []KeyedMessage
	for iter.SeekGE(lower); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		var m models.Message
		if err := json.Unmarshal(v, &m); err != nil {
			logger.Error("list_invalid_message_json", "key", string(iter.Key()), "error", err)
			return nil, "", fmt.Errorf("invalid message JSON at %s: %w", iter.Key(), err)
		}
		out = append(out, KeyedMessage{Key: string(iter.Key()), Msg: m})
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, "", err
	}
	var next string
	if opts.Limit > 0 && len(out) == opts.Limit {
		if parts, perr := keys.ParseMessageKey(out[len(out)-1].Key); perr == nil {
			next = parts.TS + "-" + parts.Seq
		}
	}
	return out, next, nil
}

// GetByID resolves a message through the id index. Returns the
// message and its storage key.
func (s *Store) GetByID(ctx context.Context, id string) (models.Message, string, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, "", err
	}
	storageKey, err := s.storageKeyFor(id)
	if err != nil {
		return models.Message{}, "", err
	}
	raw, err := s.get(storageKey)
	if err != nil {
		return models.Message{}, "", err
	}
	var m models.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return models.Message{}, "", fmt.Errorf("invalid message JSON: %w", err)
	}
	return m, storageKey, nil
}

// Delete removes a message immediately and unconditionally, provided
// the requester is its sender. There is no time window and no
// tombstone record; replies referencing the id degrade at read time.
func (s *Store) Delete(ctx context.Context, id, requester string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, storageKey, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if m.Sender != requester {
		return fmt.Errorf("only the sender may delete a message: %w", models.ErrForbidden)
	}

	cs := s.convLock(m.Conversation)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()
	_ = b.Delete([]byte(storageKey), nil)
	_ = b.Delete([]byte(keys.GenMessageIdxKey(id)), nil)
	if !m.Read() {
		// the receiver never read it; keep the unread counter honest
		unread, uerr := s.Unread(m.Conversation, m.Receiver)
		if uerr != nil {
			return uerr
		}
		if unread > 0 {
			_ = b.Set([]byte(keys.GenUnreadKey(m.Conversation, m.Receiver)), encodeCount(unread-1), nil)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("delete_commit_failed", "id", id, "error", err)
		return err
	}
	logger.Info("message_deleted", "conversation", m.Conversation, "id", id, "by", requester)
	return nil
}

// ReplyPreview resolves a reply reference for rendering. A deleted or
// never-seen target yields a tombstone, never an error.
func (s *Store) ReplyPreview(ctx context.Context, id string) models.ReplyPreview {
	m, _, err := s.GetByID(ctx, id)
	if err != nil {
		return models.ReplyPreview{ID: id, Deleted: true}
	}
	return models.ReplyPreview{ID: m.ID, Sender: m.Sender, Text: m.Text}
}

// ReplaceAt rewrites one record in place. Callers (guard, tracker)
// own the field-level mutation policy; the store only serializes the
// write per conversation.
func (s *Store) ReplaceAt(storageKey string, m models.Message) error {
	cs := s.convLock(m.Conversation)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return s.replaceLocked(storageKey, m)
}

// ReplaceBatch rewrites several records of one conversation in a
// single synced batch, optionally resetting a participant's unread
// counter in the same commit.
func (s *Store) ReplaceBatch(convKey string, muts []KeyedMessage, resetUnreadFor string) error {
	if len(muts) == 0 && resetUnreadFor == "" {
		return nil
	}
	cs := s.convLock(convKey)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()
	for _, mu := range muts {
		data, err := json.Marshal(mu.Msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		_ = b.Set([]byte(mu.Key), data, nil)
	}
	if resetUnreadFor != "" {
		_ = b.Set([]byte(keys.GenUnreadKey(convKey, resetUnreadFor)), encodeCount(0), nil)
	}
	return b.Commit(pebble.Sync)
}

func (s *Store) replaceLocked(storageKey string, m models.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.db.Set([]byte(storageKey), data, pebble.Sync)
}

// storageKeyFor maps a message id to its storage key via the id
// index.
func (s *Store) storageKeyFor(id string) (string, error) {
	v, err := s.get(keys.GenMessageIdxKey(id))
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// maxSeq scans a conversation for its largest assigned sequence
// number. Called once per conversation per process lifetime.
func (s *Store) maxSeq(convKey string) (uint64, error) {
	prefix := []byte(keys.MsgPrefix(convKey))
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	var max uint64
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		parts, perr := keys.ParseMessageKey(string(iter.Key()))
		if perr != nil {
			continue
		}
		seq, serr := keys.ParseKeySequence(parts.Seq)
		if serr != nil {
			continue
		}
		if seq > max {
			max = seq
		}
	}
	return max, iter.Error()
}
