package store

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/pebble"

	"courierdb/pkg/keys"
	"courierdb/pkg/logger"
)

// Conversations lists every conversation key in the store, by
// scanning the meta records.
func (s *Store) Conversations(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte("c:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		if !strings.HasSuffix(string(k), ":meta") {
			continue
		}
		ck, perr := keys.ParseConvMetaKey(string(k))
		if perr != nil {
			continue
		}
		out = append(out, ck)
	}
	return out, iter.Error()
}

// PurgeOlderThan deletes every message in the conversation created
// before cutoff (UTC nanoseconds), in one synced batch per
// conversation, keeping unread counters consistent. Returns the
// number of messages removed.
func (s *Store) PurgeOlderThan(convKey string, cutoff int64) (int, error) {
	cs := s.convLock(convKey)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	prefix := []byte(keys.MsgPrefix(convKey))
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	b := s.db.NewBatch()
	defer b.Close()
	removed := 0
	unreadDrop := map[string]uint64{}
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m struct {
			ID        string `json:"id"`
			Receiver  string `json:"receiver"`
			Status    string `json:"status"`
			CreatedTS int64  `json:"created_ts"`
		}
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("purge_skip_invalid_record", "key", string(iter.Key()), "error", err)
			continue
		}
		if m.CreatedTS >= cutoff {
			// keys order by timestamp, nothing newer qualifies
			break
		}
		_ = b.Delete(append([]byte(nil), iter.Key()...), nil)
		_ = b.Delete([]byte(keys.GenMessageIdxKey(m.ID)), nil)
		if m.Status != "read" {
			unreadDrop[m.Receiver]++
		}
		removed++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}
	for user, drop := range unreadDrop {
		n, uerr := s.Unread(convKey, user)
		if uerr != nil {
			return 0, uerr
		}
		if drop > n {
			drop = n
		}
		_ = b.Set([]byte(keys.GenUnreadKey(convKey, user)), encodeCount(n-drop), nil)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	logger.Info("conversation_purged", "conversation", convKey, "removed", removed)
	return removed, nil
}
