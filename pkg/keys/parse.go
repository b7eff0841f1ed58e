package keys

import (
	"fmt"
	"strconv"
	"strings"
)

type MessageKeyParts struct {
	ConvKey string
	TS      string
	Seq     string
}

type UserConvParts struct {
	UserID  string
	ConvKey string
}

func parsePaddedInt(s string, width int) (int64, error) {
	if len(s) == 0 || len(s) > width {
		return 0, fmt.Errorf("length invalid: %s", s)
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return 0, nil
	}
	return strconv.ParseInt(trimmed, 10, 64)
}

func parsePaddedUint(s string, width int) (uint64, error) {
	if len(s) == 0 || len(s) > width {
		return 0, fmt.Errorf("length invalid: %s", s)
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return 0, nil
	}
	return strconv.ParseUint(trimmed, 10, 64)
}

func ParseMessageKey(key string) (*MessageKeyParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "c" || parts[2] != "m" {
		return nil, fmt.Errorf("invalid message storage key: %s", key)
	}
	pos := strings.SplitN(parts[3], "-", 2)
	if len(pos) != 2 {
		return nil, fmt.Errorf("invalid message position segment: %s", key)
	}
	return &MessageKeyParts{ConvKey: parts[1], TS: pos[0], Seq: pos[1]}, nil
}

func ParseConvMetaKey(key string) (string, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "c" || parts[2] != "meta" {
		return "", fmt.Errorf("invalid conversation meta key: %s", key)
	}
	return parts[1], nil
}

func ParseUserConvKey(key string) (*UserConvParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[0] != "idx" || parts[1] != "u" || parts[3] != "c" {
		return nil, fmt.Errorf("invalid user conversation key: %s", key)
	}
	return &UserConvParts{UserID: parts[2], ConvKey: parts[4]}, nil
}

func ParseKeyTimestamp(s string) (int64, error) {
	return parsePaddedInt(s, TSPadWidth)
}

func ParseKeySequence(s string) (uint64, error) {
	return parsePaddedUint(s, SeqPadWidth)
}
