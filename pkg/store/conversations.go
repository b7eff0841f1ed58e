package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"

	"courierdb/pkg/keys"
	"courierdb/pkg/models"
)

// Meta returns the stored conversation record.
func (s *Store) Meta(ctx context.Context, convKey string) (models.ConversationMeta, error) {
	if err := ctx.Err(); err != nil {
		return models.ConversationMeta{}, err
	}
	raw, err := s.get(keys.GenConvMetaKey(convKey))
	if err != nil {
		return models.ConversationMeta{}, err
	}
	var meta models.ConversationMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return models.ConversationMeta{}, fmt.Errorf("invalid conversation meta JSON: %w", err)
	}
	return meta, nil
}

// ConversationsOf lists the conversation keys a user participates in.
func (s *Store) ConversationsOf(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(keys.UserConvPrefix(userID))
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		parts, perr := keys.ParseUserConvKey(string(iter.Key()))
		if perr != nil {
			continue
		}
		out = append(out, parts.ConvKey)
	}
	return out, iter.Error()
}

// Unread returns a participant's unread counter for a conversation.
// A missing counter reads as zero.
func (s *Store) Unread(convKey, userID string) (uint64, error) {
	raw, err := s.get(keys.GenUnreadKey(convKey, userID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return decodeCount(raw)
}

// SetUnread overwrites a participant's unread counter. Used by the
// tracker after a partial mark-read recount.
func (s *Store) SetUnread(convKey, userID string, n uint64) error {
	cs := s.convLock(convKey)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return s.db.Set([]byte(keys.GenUnreadKey(convKey, userID)), encodeCount(n), pebble.Sync)
}

// metaForAppend loads (or initializes) the conversation meta and
// advances its activity fields for the message being appended.
// Caller holds the conversation lock.
func (s *Store) metaForAppend(convKey, sender, receiver string, m models.Message) (models.ConversationMeta, error) {
	raw, err := s.get(keys.GenConvMetaKey(convKey))
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return models.ConversationMeta{}, err
		}
		a, b := sender, receiver
		if b < a {
			a, b = b, a
		}
		return models.ConversationMeta{
			Key:            convKey,
			Participants:   [2]string{a, b},
			CreatedTS:      m.CreatedTS,
			LastActivityTS: m.CreatedTS,
			LastMessageID:  m.ID,
		}, nil
	}
	var meta models.ConversationMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return models.ConversationMeta{}, fmt.Errorf("invalid conversation meta JSON: %w", err)
	}
	meta.LastActivityTS = m.CreatedTS
	meta.LastMessageID = m.ID
	return meta, nil
}

// Counters are stored as decimal strings so they stay readable in the
// inspect tooling.
func encodeCount(n uint64) []byte {
	return []byte(strconv.FormatUint(n, 10))
}

func decodeCount(raw []byte) (uint64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid counter value %q: %w", raw, err)
	}
	return n, nil
}
