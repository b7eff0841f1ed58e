package index

import (
	"context"
	"errors"
	"sort"

	"courierdb/pkg/models"
	"courierdb/pkg/store"
)

// Index answers "which conversations does this user have, and how
// many messages are unread in each". It is entirely derived from the
// store's markers and counters; it never writes.
type Index struct {
	st *store.Store
}

func New(st *store.Store) *Index { return &Index{st: st} }

// Summary is one row of a user's conversation list.
type Summary struct {
	Key            string    `json:"key"`
	Participants   [2]string `json:"participants"`
	Peer           string    `json:"peer"`
	LastActivityTS int64     `json:"last_activity_ts"`
	LastMessageID  string    `json:"last_message_id,omitempty"`
	Unread         uint64    `json:"unread"`
}

// Conversations lists the user's conversations ordered by most recent
// activity first.
func (ix *Index) Conversations(ctx context.Context, userID string) ([]Summary, error) {
	convKeys, err := ix.st.ConversationsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(convKeys))
	for _, ck := range convKeys {
		meta, merr := ix.st.Meta(ctx, ck)
		if merr != nil {
			if errors.Is(merr, models.ErrNotFound) {
				continue
			}
			return nil, merr
		}
		unread, uerr := ix.st.Unread(ck, userID)
		if uerr != nil {
			return nil, uerr
		}
		peer := meta.Participants[0]
		if peer == userID {
			peer = meta.Participants[1]
		}
		out = append(out, Summary{
			Key:            meta.Key,
			Participants:   meta.Participants,
			Peer:           peer,
			LastActivityTS: meta.LastActivityTS,
			LastMessageID:  meta.LastMessageID,
			Unread:         unread,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivityTS != out[j].LastActivityTS {
			return out[i].LastActivityTS > out[j].LastActivityTS
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// UnreadCount returns a user's unread counter for one conversation.
func (ix *Index) UnreadCount(_ context.Context, convKey, userID string) (uint64, error) {
	return ix.st.Unread(convKey, userID)
}
