package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"courierdb/pkg/clock"
	"courierdb/pkg/models"
	"courierdb/pkg/store"
)

func setup(t *testing.T, window time.Duration) (*Guard, *store.Store, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))
	st, err := store.Open(t.TempDir(), clk, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, clk, window), st, clk
}

func TestCanEditWindow(t *testing.T) {
	g, st, clk := setup(t, 0)
	m, err := st.Append(context.Background(), "alice", "bob", store.Draft{Text: "hi"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if !g.CanEdit(m, "alice", clk.Now()) {
		t.Fatalf("sender should be able to edit immediately")
	}
	if g.CanEdit(m, "bob", clk.Now()) {
		t.Fatalf("receiver must never be able to edit")
	}
	if g.CanEdit(m, "", clk.Now()) {
		t.Fatalf("anonymous requester must never be able to edit")
	}
	if !g.CanEdit(m, "alice", clk.Now().Add(5*time.Minute)) {
		t.Fatalf("edit at +5m should be allowed with the default window")
	}
	if g.CanEdit(m, "alice", clk.Now().Add(11*time.Minute)) {
		t.Fatalf("edit at +11m must be refused")
	}
	if g.CanEdit(m, "alice", clk.Now().Add(-time.Second)) {
		t.Fatalf("a clock before creation must refuse edits")
	}
}

func TestApplyEdit(t *testing.T) {
	g, st, clk := setup(t, 0)
	ctx := context.Background()
	m, err := st.Append(ctx, "alice", "bob", store.Draft{Text: "draft", Media: []models.Media{{URL: "mem://a"}}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	clk.Advance(5 * time.Minute)
	edited, err := g.ApplyEdit(ctx, m.ID, "alice", "final")
	if err != nil {
		t.Fatalf("edit within window: %v", err)
	}
	if edited.Text != "final" || !edited.Edited {
		t.Fatalf("edit not applied: %+v", edited)
	}
	if edited.EditedTS != clk.Now().UnixNano() || edited.UpdatedTS != edited.EditedTS {
		t.Fatalf("edit timestamps wrong: %+v", edited)
	}
	if len(edited.Media) != 1 || edited.Media[0].URL != "mem://a" {
		t.Fatalf("media must survive an edit: %+v", edited.Media)
	}

	got, _, err := st.GetByID(ctx, m.ID)
	if err != nil || got.Text != "final" {
		t.Fatalf("edit not persisted: %v %+v", err, got)
	}
}

func TestApplyEditRefusals(t *testing.T) {
	g, st, clk := setup(t, 0)
	ctx := context.Background()
	m, err := st.Append(ctx, "alice", "bob", store.Draft{Text: "hi"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := g.ApplyEdit(ctx, m.ID, "bob", "hijack"); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("non-sender edit: want ErrForbidden, got %v", err)
	}
	if _, err := g.ApplyEdit(ctx, m.ID, "alice", "   "); !errors.Is(err, models.ErrEmptyText) {
		t.Fatalf("blank replacement: want ErrEmptyText, got %v", err)
	}
	if _, err := g.ApplyEdit(ctx, "missing", "alice", "x"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown id: want ErrNotFound, got %v", err)
	}

	clk.Advance(11 * time.Minute)
	if _, err := g.ApplyEdit(ctx, m.ID, "alice", "late"); !errors.Is(err, models.ErrEditWindowExpired) {
		t.Fatalf("expired window: want ErrEditWindowExpired, got %v", err)
	}
	got, _, err := st.GetByID(ctx, m.ID)
	if err != nil || got.Text != "hi" || got.Edited {
		t.Fatalf("refused edit must leave the record alone: %v %+v", err, got)
	}
}

func TestCustomWindow(t *testing.T) {
	g, st, clk := setup(t, time.Minute)
	ctx := context.Background()
	m, err := st.Append(ctx, "alice", "bob", store.Draft{Text: "hi"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	clk.Advance(90 * time.Second)
	if _, err := g.ApplyEdit(ctx, m.ID, "alice", "late"); !errors.Is(err, models.ErrEditWindowExpired) {
		t.Fatalf("want ErrEditWindowExpired with a 1m window, got %v", err)
	}
}

func TestDeleteHasNoWindow(t *testing.T) {
	g, st, clk := setup(t, 0)
	ctx := context.Background()
	m, err := st.Append(ctx, "alice", "bob", store.Draft{Text: "hi"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	clk.Advance(24 * time.Hour)
	if err := g.Delete(ctx, m.ID, "bob"); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("non-sender delete: want ErrForbidden, got %v", err)
	}
	if err := g.Delete(ctx, m.ID, "alice"); err != nil {
		t.Fatalf("delete long after the edit window should succeed: %v", err)
	}
	if _, _, err := st.GetByID(ctx, m.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("deleted message still resolvable: %v", err)
	}
}
