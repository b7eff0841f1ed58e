package keys

import (
	"fmt"
	"strings"
)

// ConvKey returns the canonical key for the unordered participant
// pair: both ids sorted lexicographically and joined with ConvKeySep.
// ConvKey(a, b) == ConvKey(b, a) for all a, b.
func ConvKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ConvKeySep + b
}

// ConvParticipants splits a conversation key back into its two
// participant ids.
func ConvParticipants(convKey string) (string, string, error) {
	parts := strings.SplitN(convKey, ConvKeySep, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid conversation key: %s", convKey)
	}
	return parts[0], parts[1], nil
}

func GenMessageKey(convKey string, ts int64, seq uint64) string {
	return fmt.Sprintf(MessageKey, convKey, PadTS(ts), PadSeq(seq))
}

func GenConvMetaKey(convKey string) string {
	return fmt.Sprintf(ConvMetaKey, convKey)
}

func GenMessageIdxKey(msgID string) string {
	return fmt.Sprintf(MessageIdx, msgID)
}

func GenUserConvKey(userID, convKey string) string {
	return fmt.Sprintf(UserConvIdx, userID, convKey)
}

func GenUnreadKey(convKey, userID string) string {
	return fmt.Sprintf(UnreadIdx, convKey, userID)
}

// MsgPrefix is the common prefix of all message records in a
// conversation; iterating from it yields canonical order.
func MsgPrefix(convKey string) string {
	return "c:" + convKey + ":m:"
}

// UserConvPrefix is the common prefix of a user's conversation
// markers.
func UserConvPrefix(userID string) string {
	return "idx:u:" + userID + ":c:"
}

// helpers
func PadTS(ts int64) string {
	return fmt.Sprintf("%0*d", TSPadWidth, ts)
}

func PadSeq(seq uint64) string {
	return fmt.Sprintf("%0*d", SeqPadWidth, seq)
}
