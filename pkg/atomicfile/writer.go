package atomicfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/maintlog/maintlog/pkg/telemetry"
)

var (
	// ErrVerification is matched by every *VerificationError.
	ErrVerification = errors.New("post-write verification failed")

	// ErrNotAtomic is returned when the rename failed and the non-atomic
	// fallback is disabled.
	ErrNotAtomic = errors.New("atomic rename unavailable")
)

// rename is swapped in tests to simulate platforms without atomic moves and
// crashes between flush and rename.
var rename = os.Rename

// VerifyFunc checks the bytes read back from the target after a write.
type VerifyFunc func(data []byte) error

// Options configures a Writer.
type Options struct {
	// Backup copies an existing target to <target>.bak before writing.
	Backup bool

	// BackupGuard, if set, must accept the existing target before it may
	// replace the backup. A rejected target leaves the previous backup in
	// place.
	BackupGuard VerifyFunc

	// AllowNonAtomic permits replacing the target in place when rename
	// fails. The downgrade is reported through Result.Degraded.
	AllowNonAtomic bool

	// FileMode is used for the staged and replaced files. Defaults to 0644.
	FileMode fs.FileMode

	// AfterCommit runs after the target has been replaced and before it is
	// verified. An error is handled like a failed verification.
	AfterCommit func(path string) error

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
}

// Result describes a completed write.
type Result struct {
	Path     string
	Bytes    int
	BackedUp bool
	// Degraded is set when the payload was written in place instead of
	// being renamed over the target.
	Degraded bool
}

// VerificationError reports a write whose read-back failed the predicate.
type VerificationError struct {
	Path        string
	Err         error
	RolledBack  bool
	RollbackErr error
}

func (e *VerificationError) Error() string {
	switch {
	case e.RolledBack:
		return fmt.Sprintf("verification of %s failed, previous content restored: %v", e.Path, e.Err)
	case e.RollbackErr != nil:
		return fmt.Sprintf("verification of %s failed and rollback failed (%v): %v", e.Path, e.RollbackErr, e.Err)
	default:
		return fmt.Sprintf("verification of %s failed: %v", e.Path, e.Err)
	}
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrVerification.
func (e *VerificationError) Is(target error) bool { return target == ErrVerification }

// Writer performs staged, verified writes.
type Writer struct {
	opts Options
}

// New returns a Writer configured with opts.
func New(opts Options) *Writer {
	if opts.FileMode == 0 {
		opts.FileMode = 0o644
	}
	return &Writer{opts: opts}
}

// TempPath returns the staging path used for target.
func TempPath(target string) string { return target + ".tmp" }

// BackupPath returns the backup path used for target.
func BackupPath(target string) string { return target + ".bak" }

// Write replaces target with payload. verify may be nil. If the staging
// write or the rename fails the previous target is left untouched.
func (w *Writer) Write(ctx context.Context, target string, payload []byte, verify VerifyFunc) (Result, error) {
	res := Result{Path: target, Bytes: len(payload)}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	log := w.opts.Logger.With().Str("path", target).Logger()

	existed := false
	switch _, err := os.Stat(target); {
	case err == nil:
		existed = true
	case !errors.Is(err, fs.ErrNotExist):
		return res, fmt.Errorf("stat %s: %w", target, err)
	}

	if existed && w.opts.Backup {
		if err := w.backup(target); err != nil {
			log.Warn().Err(err).Msg("backup before write skipped")
			w.opts.Metrics.RecordBackupFailure()
		} else {
			res.BackedUp = true
		}
	}

	tmp := TempPath(target)
	if err := writeSynced(tmp, payload, w.opts.FileMode); err != nil {
		_ = os.Remove(tmp)
		return res, fmt.Errorf("stage %s: %w", tmp, err)
	}

	if err := rename(tmp, target); err != nil {
		if !w.opts.AllowNonAtomic {
			_ = os.Remove(tmp)
			return res, fmt.Errorf("%w: %v", ErrNotAtomic, err)
		}
		log.Warn().Err(err).Msg("atomic rename failed, replacing target in place")
		if werr := writeSynced(target, payload, w.opts.FileMode); werr != nil {
			_ = os.Remove(tmp)
			if res.BackedUp {
				if rerr := w.restore(target); rerr != nil {
					log.Error().Err(rerr).Msg("restore after failed in-place replace failed")
				}
			}
			return res, fmt.Errorf("replace %s: %w", target, werr)
		}
		_ = os.Remove(tmp)
		res.Degraded = true
		w.opts.Metrics.RecordDegradedWrite()
	}

	if err := syncDir(filepath.Dir(target)); err != nil {
		log.Debug().Err(err).Msg("directory sync failed")
	}

	var checkErr error
	if w.opts.AfterCommit != nil {
		checkErr = w.opts.AfterCommit(target)
	}
	if checkErr == nil && verify != nil {
		data, err := os.ReadFile(target)
		if err != nil {
			checkErr = fmt.Errorf("read back: %w", err)
		} else {
			checkErr = verify(data)
		}
	}
	if checkErr != nil {
		verr := &VerificationError{Path: target, Err: checkErr}
		switch {
		case res.BackedUp:
			verr.RollbackErr = w.restore(target)
		case !existed:
			verr.RollbackErr = os.Remove(target)
		default:
			verr.RollbackErr = errors.New("no backup available")
		}
		verr.RolledBack = verr.RollbackErr == nil
		w.opts.Metrics.RecordRollback()
		log.Error().Err(checkErr).Bool("rolled_back", verr.RolledBack).Msg("post-write verification failed")
		return res, verr
	}

	log.Debug().Int("bytes", res.Bytes).Bool("degraded", res.Degraded).Msg("file written")
	return res, nil
}

// restore puts the backup back over target through the same staged path.
func (w *Writer) restore(target string) error {
	data, err := os.ReadFile(BackupPath(target))
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	tmp := TempPath(target)
	if err := writeSynced(tmp, data, w.opts.FileMode); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return writeSynced(target, data, w.opts.FileMode)
	}
	return nil
}

// Restore replaces target with the content of its backup after checking
// the backup with verify.
func (w *Writer) Restore(ctx context.Context, target string, verify VerifyFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(BackupPath(target))
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if verify != nil {
		if err := verify(data); err != nil {
			return fmt.Errorf("backup is not usable: %w", err)
		}
	}
	return w.restore(target)
}

func writeSynced(path string, data []byte, mode fs.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// backup copies target to its backup path unless the guard rejects it.
func (w *Writer) backup(target string) error {
	data, err := os.ReadFile(target)
	if err != nil {
		return err
	}
	if w.opts.BackupGuard != nil {
		if err := w.opts.BackupGuard(data); err != nil {
			return fmt.Errorf("current file not backed up, keeping previous backup: %w", err)
		}
	}
	return writeSynced(BackupPath(target), data, w.opts.FileMode)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
