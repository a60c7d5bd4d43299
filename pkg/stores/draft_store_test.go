package stores

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// steppingClock returns a clock that advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(step)
		return now
	}
}

func newTestDrafts(t *testing.T, max int) *DraftStore {
	t.Helper()
	store, err := NewDraftStore(DraftConfig{Dir: filepath.Join(t.TempDir(), "drafts"), MaxDrafts: max})
	if err != nil {
		t.Fatalf("failed to create draft store: %v", err)
	}
	store.now = steppingClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), time.Second)
	return store
}

func TestDraftSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestDrafts(t, 0)

	info, err := store.Save(ctx, Payload{FieldTicket: "T-9", FieldRequester: "Ana", FieldProblem: "no boot", FieldBrand: ""})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(info.Path), "draft_20260501T080000.") {
		t.Errorf("unexpected draft file name %s", info.Path)
	}
	if info.Ticket != "T-9" || info.Requester != "Ana" || info.FieldCount != 3 {
		t.Errorf("unexpected info: %+v", info)
	}

	draft, err := store.Load(ctx, info.Token)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if draft.Fields.Get(FieldProblem) != "no boot" {
		t.Errorf("field lost: %+v", draft.Fields)
	}
	if _, ok := draft.Fields[savedAtKey]; ok {
		t.Error("reserved key leaked into fields")
	}
	if !draft.SavedAt.Equal(info.SavedAt) {
		t.Errorf("saved_at mismatch: %v vs %v", draft.SavedAt, info.SavedAt)
	}

	// Loading does not consume.
	if _, err := store.Load(ctx, info.Token); err != nil {
		t.Fatalf("second load failed: %v", err)
	}

	if err := store.Delete(ctx, info.Token); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Load(ctx, info.Token); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound, got %v", err)
	}
	if err := store.Delete(ctx, info.Token); err != nil {
		t.Errorf("deleting a missing draft should succeed, got %v", err)
	}
}

func TestDraftSaveRequiresKeyField(t *testing.T) {
	store := newTestDrafts(t, 0)

	_, err := store.Save(context.Background(), Payload{FieldProblem: "text only", FieldTicket: "  "})
	if !errors.Is(err, ErrDraftEmpty) {
		t.Fatalf("expected ErrDraftEmpty, got %v", err)
	}
	if _, statErr := os.Stat(store.Dir()); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("no draft directory should be created for an empty form")
	}
}

func TestDraftRetentionKeepsNewest(t *testing.T) {
	ctx := context.Background()
	store := newTestDrafts(t, DefaultMaxDrafts)

	var tokens []string
	for i := 0; i < 25; i++ {
		info, err := store.Save(ctx, Payload{FieldTicket: "T"})
		if err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
		tokens = append(tokens, info.Token)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != DefaultMaxDrafts {
		t.Fatalf("expected %d drafts, got %d", DefaultMaxDrafts, len(list))
	}
	// Newest first, the five oldest gone.
	for i, info := range list {
		want := tokens[len(tokens)-1-i]
		if info.Token != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, info.Token)
		}
	}
	for _, tok := range tokens[:5] {
		if _, err := store.Load(ctx, tok); !errors.Is(err, ErrDraftNotFound) {
			t.Errorf("expected %s to be trimmed, got %v", tok, err)
		}
	}
}

func TestDraftTokensUniqueUnderFixedClock(t *testing.T) {
	ctx := context.Background()
	store := newTestDrafts(t, 0)
	fixed := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	a, err := store.Save(ctx, Payload{FieldTicket: "A"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	b, err := store.Save(ctx, Payload{FieldTicket: "B"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if a.Token == b.Token {
		t.Fatalf("tokens collided: %s", a.Token)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].Ticket != "B" {
		t.Errorf("expected B newest, got %+v", list)
	}
}

func TestDraftListSkipsCorruptFiles(t *testing.T) {
	ctx := context.Background()
	store := newTestDrafts(t, 0)

	good, err := store.Save(ctx, Payload{FieldTechnician: "Luis"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	bad := filepath.Join(store.Dir(), "draft_20260101T000000.000000000.yaml")
	if err := os.WriteFile(bad, []byte("ticket: [unterminated"), 0o644); err != nil {
		t.Fatalf("write corrupt draft: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 || list[0].Token != good.Token {
		t.Fatalf("expected only the good draft, got %+v", list)
	}

	if _, err := store.Load(ctx, "20260101T000000.000000000"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt loading bad draft, got %v", err)
	}

	n, err := store.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("delete all failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 drafts removed, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "notes.txt")); err != nil {
		t.Errorf("unrelated file should survive: %v", err)
	}
}

func TestDraftRejectsInvalidToken(t *testing.T) {
	store := newTestDrafts(t, 0)
	ctx := context.Background()

	for _, tok := range []string{"", "../reports", "20260101T000000", "draft_20260101T000000.000000000"} {
		if _, err := store.Load(ctx, tok); !errors.Is(err, ErrDraftNotFound) {
			t.Errorf("token %q: expected ErrDraftNotFound, got %v", tok, err)
		}
	}
}

func TestDraftListMissingDir(t *testing.T) {
	store := newTestDrafts(t, 0)

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no drafts, got %d", len(list))
	}
}

func TestDraftSaveFailsOnStatError(t *testing.T) {
	store := newTestDrafts(t, 0)

	calls := 0
	orig := statDraft
	statDraft = func(name string) (os.FileInfo, error) {
		calls++
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrPermission}
	}
	t.Cleanup(func() { statDraft = orig })

	_, err := store.Save(context.Background(), Payload{FieldTicket: "T-1"})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Errorf("expected the stat cause to be kept, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single stat attempt, got %d", calls)
	}
}
