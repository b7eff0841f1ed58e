package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"courierdb/pkg/clock"
	"courierdb/pkg/models"
	"courierdb/pkg/store"
)

func TestRunOncePurgesAgedMessages(t *testing.T) {
	clk := clock.NewFake(time.Now().UTC().Add(-48 * time.Hour))
	st, err := store.Open(t.TempDir(), clk, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	old, err := st.Append(ctx, "alice", "bob", store.Draft{Text: "old"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	stale, err := st.Append(ctx, "carol", "dave", store.Draft{Text: "also old"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	clk.Set(time.Now().UTC())
	fresh, err := st.Append(ctx, "alice", "bob", store.Draft{Text: "fresh"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	removed, err := RunOnce(ctx, st, 24*time.Hour)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	for _, id := range []string{old.ID, stale.ID} {
		if _, _, err := st.GetByID(ctx, id); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("aged message %s should be gone: %v", id, err)
		}
	}
	if _, _, err := st.GetByID(ctx, fresh.ID); err != nil {
		t.Fatalf("fresh message must survive: %v", err)
	}
}

func TestStartValidation(t *testing.T) {
	st, err := store.Open(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	cancel, err := Start(ctx, st, Config{})
	if err != nil || cancel == nil {
		t.Fatalf("disabled retention: %v", err)
	}
	cancel()

	if _, err := Start(ctx, st, Config{Enabled: true}); err == nil {
		t.Fatalf("enabled without max_age must fail")
	}
	if _, err := Start(ctx, st, Config{Enabled: true, MaxAge: time.Hour, Cron: "not a cron"}); err == nil {
		t.Fatalf("invalid cron must fail")
	}

	cancel, err = Start(ctx, st, Config{Enabled: true, MaxAge: time.Hour, Cron: "0 2 * * *"})
	if err != nil {
		t.Fatalf("valid schedule: %v", err)
	}
	cancel()
}
