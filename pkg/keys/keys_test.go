package keys

import (
	"testing"
)

func TestConvKeyCanonical(t *testing.T) {
	if ConvKey("alice", "bob") != ConvKey("bob", "alice") {
		t.Fatalf("conversation key must not depend on argument order")
	}
	if got := ConvKey("bob", "alice"); got != "alice~bob" {
		t.Fatalf("expected alice~bob, got %s", got)
	}
	a, b, err := ConvParticipants("alice~bob")
	if err != nil {
		t.Fatalf("ConvParticipants: %v", err)
	}
	if a != "alice" || b != "bob" {
		t.Fatalf("unexpected participants %s, %s", a, b)
	}
	if _, _, err := ConvParticipants("nosep"); err == nil {
		t.Fatalf("expected error for key without separator")
	}
}

func TestMessageKeyOrdering(t *testing.T) {
	ck := ConvKey("alice", "bob")
	k1 := GenMessageKey(ck, 1000, 1)
	k2 := GenMessageKey(ck, 1000, 2)
	k3 := GenMessageKey(ck, 2000, 1)
	if !(k1 < k2 && k2 < k3) {
		t.Fatalf("keys must sort by (ts, seq): %s %s %s", k1, k2, k3)
	}
	// padding keeps a longer timestamp from sorting below a shorter one
	small := GenMessageKey(ck, 999, 9)
	big := GenMessageKey(ck, 1000000000000000000, 1)
	if !(small < big) {
		t.Fatalf("padded timestamps must sort numerically")
	}
	// the sequence pad covers the whole counter range
	s1 := GenMessageKey(ck, 1000, 999999)
	s2 := GenMessageKey(ck, 1000, 1000000)
	s3 := GenMessageKey(ck, 1000, 18446744073709551615)
	if !(s1 < s2 && s2 < s3) {
		t.Fatalf("large sequence numbers must keep sorting numerically: %s %s %s", s1, s2, s3)
	}
	seq, err := ParseKeySequence("18446744073709551615")
	if err != nil || seq != 18446744073709551615 {
		t.Fatalf("max sequence round-trip: %d, %v", seq, err)
	}
}

func TestParseMessageKeyRoundTrip(t *testing.T) {
	ck := ConvKey("alice", "bob")
	key := GenMessageKey(ck, 1712345678901234567, 42)
	parts, err := ParseMessageKey(key)
	if err != nil {
		t.Fatalf("ParseMessageKey: %v", err)
	}
	if parts.ConvKey != ck {
		t.Fatalf("conv key mismatch: %s", parts.ConvKey)
	}
	ts, err := ParseKeyTimestamp(parts.TS)
	if err != nil || ts != 1712345678901234567 {
		t.Fatalf("timestamp mismatch: %d, %v", ts, err)
	}
	seq, err := ParseKeySequence(parts.Seq)
	if err != nil || seq != 42 {
		t.Fatalf("sequence mismatch: %d, %v", seq, err)
	}
}

func TestParseRejectsForeignKeys(t *testing.T) {
	if _, err := ParseMessageKey(GenConvMetaKey("alice~bob")); err == nil {
		t.Fatalf("meta key must not parse as a message key")
	}
	if _, err := ParseUserConvKey("idx:unread:c:alice~bob:u:bob"); err == nil {
		t.Fatalf("unread key must not parse as a user conversation marker")
	}
	ck, err := ParseConvMetaKey("c:alice~bob:meta")
	if err != nil || ck != "alice~bob" {
		t.Fatalf("ParseConvMetaKey: %s, %v", ck, err)
	}
}
