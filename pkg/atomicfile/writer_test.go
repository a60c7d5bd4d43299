package atomicfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// stubRename replaces the rename primitive for the duration of the test.
func stubRename(t *testing.T, fn func(oldpath, newpath string) error) {
	t.Helper()
	orig := rename
	rename = fn
	t.Cleanup(func() { rename = orig })
}

func lengthIs(n int) VerifyFunc {
	return func(data []byte) error {
		if len(data) != n {
			return fmt.Errorf("expected %d bytes, got %d", n, len(data))
		}
		return nil
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestWriteCreatesTargetAndBackup(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "reports.json")
	w := New(Options{Backup: true})

	res, err := w.Write(ctx, target, []byte("first"), lengthIs(5))
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if res.BackedUp {
		t.Error("expected no backup for a new file")
	}

	res, err = w.Write(ctx, target, []byte("second"), lengthIs(6))
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if !res.BackedUp {
		t.Error("expected backup of existing file")
	}
	if got := readFile(t, target); got != "second" {
		t.Errorf("expected target %q, got %q", "second", got)
	}
	if got := readFile(t, BackupPath(target)); got != "first" {
		t.Errorf("expected backup %q, got %q", "first", got)
	}
	if _, err := os.Stat(TempPath(target)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected temp file to be gone, stat err = %v", err)
	}
}

func TestInterruptedBeforeRenameKeepsTarget(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "reports.json")
	w := New(Options{Backup: true})

	if _, err := w.Write(ctx, target, []byte("stable"), nil); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	// The staged file is fully flushed when rename is reached; failing
	// there is what a crash at that point leaves behind.
	var staged string
	stubRename(t, func(oldpath, _ string) error {
		staged = readFile(t, oldpath)
		return errors.New("power loss")
	})

	_, err := w.Write(ctx, target, []byte("half-done"), nil)
	if !errors.Is(err, ErrNotAtomic) {
		t.Fatalf("expected ErrNotAtomic, got %v", err)
	}
	if staged != "half-done" {
		t.Errorf("expected staged payload to be complete before rename, got %q", staged)
	}
	if got := readFile(t, target); got != "stable" {
		t.Errorf("expected target untouched, got %q", got)
	}
}

func TestStaleTempFileIsOverwritten(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "reports.json")
	if err := os.WriteFile(TempPath(target), []byte("garbage from a crash"), 0o644); err != nil {
		t.Fatalf("failed to seed temp file: %v", err)
	}

	if _, err := New(Options{}).Write(ctx, target, []byte("fresh"), lengthIs(5)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := readFile(t, target); got != "fresh" {
		t.Errorf("expected %q, got %q", "fresh", got)
	}
}

func TestNonAtomicFallbackIsReported(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "reports.json")
	w := New(Options{Backup: true, AllowNonAtomic: true})

	if _, err := w.Write(ctx, target, []byte("old"), nil); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	stubRename(t, func(_, _ string) error { return &os.LinkError{Op: "rename", Err: errors.New("cross-device link")} })

	res, err := w.Write(ctx, target, []byte("new!"), lengthIs(4))
	if err != nil {
		t.Fatalf("fallback write failed: %v", err)
	}
	if !res.Degraded {
		t.Error("expected Degraded to be reported")
	}
	if got := readFile(t, target); got != "new!" {
		t.Errorf("expected %q, got %q", "new!", got)
	}
	if _, err := os.Stat(TempPath(target)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected temp file removed after fallback")
	}
}

func TestVerificationFailureRestoresBackup(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "reports.json")
	w := New(Options{Backup: true})

	if _, err := w.Write(ctx, target, []byte("good"), nil); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	_, err := w.Write(ctx, target, []byte("bad payload"), lengthIs(4))
	if !errors.Is(err, ErrVerification) {
		t.Fatalf("expected ErrVerification, got %v", err)
	}
	var verr *VerificationError
	if !errors.As(err, &verr) || !verr.RolledBack {
		t.Fatalf("expected rolled back VerificationError, got %#v", err)
	}
	if got := readFile(t, target); got != "good" {
		t.Errorf("expected restored content %q, got %q", "good", got)
	}
}

func TestAfterCommitCorruptionIsRolledBack(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "reports.json")
	seed := New(Options{Backup: true})
	if _, err := seed.Write(ctx, target, []byte("v1"), nil); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	w := New(Options{
		Backup: true,
		AfterCommit: func(path string) error {
			return os.WriteFile(path, []byte("bit rot"), 0o644)
		},
	})
	_, err := w.Write(ctx, target, []byte("v2"), lengthIs(2))
	if !errors.Is(err, ErrVerification) {
		t.Fatalf("expected ErrVerification, got %v", err)
	}
	if got := readFile(t, target); got != "v1" {
		t.Errorf("expected %q after rollback, got %q", "v1", got)
	}
}

func TestVerificationFailureOnNewFileRemovesIt(t *testing.T) {
	target := filepath.Join(t.TempDir(), "reports.json")

	_, err := New(Options{Backup: true}).Write(context.Background(), target, []byte("abc"), lengthIs(10))
	if !errors.Is(err, ErrVerification) {
		t.Fatalf("expected ErrVerification, got %v", err)
	}
	if _, err := os.Stat(target); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected target removed, stat err = %v", err)
	}
}

func TestWriteHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	target := filepath.Join(t.TempDir(), "reports.json")

	if _, err := New(Options{}).Write(ctx, target, []byte("x"), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(target); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected nothing written")
	}
}

func TestRestoreChecksBackup(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "reports.json")
	w := New(Options{Backup: true})

	for i := 1; i <= 2; i++ {
		if _, err := w.Write(ctx, target, []byte("v"+strconv.Itoa(i)), nil); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if err := w.Restore(ctx, target, lengthIs(99)); err == nil {
		t.Fatal("expected restore to reject a backup failing verification")
	}
	if err := w.Restore(ctx, target, lengthIs(2)); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if got := readFile(t, target); got != "v1" {
		t.Errorf("expected %q, got %q", "v1", got)
	}
}

func TestBackupGuardKeepsPreviousBackup(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "reports.json")
	w := New(Options{
		Backup: true,
		BackupGuard: func(data []byte) error {
			if string(data) == "garbage" {
				return errors.New("unreadable")
			}
			return nil
		},
	})

	for _, payload := range []string{"v1", "v2"} {
		if _, err := w.Write(ctx, target, []byte(payload), nil); err != nil {
			t.Fatalf("write %s failed: %v", payload, err)
		}
	}
	if err := os.WriteFile(target, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := w.Write(ctx, target, []byte("v3"), nil)
	if err != nil {
		t.Fatalf("write over rejected target failed: %v", err)
	}
	if res.BackedUp {
		t.Error("expected no backup of a rejected target")
	}
	if got := readFile(t, BackupPath(target)); got != "v1" {
		t.Errorf("expected backup %q kept, got %q", "v1", got)
	}
	if got := readFile(t, target); got != "v3" {
		t.Errorf("expected target %q, got %q", "v3", got)
	}
}
