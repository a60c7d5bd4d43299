package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotLoaded is returned by mutations when the collection could not be
// loaded for the active project.
var ErrNotLoaded = errors.New("collection not loaded for the active project")

// ItemFailure is one failed item of a batch.
type ItemFailure struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// BatchResult tallies a batch operation. Failed items never stop the rest.
type BatchResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []ItemFailure `json:"failed,omitempty"`
}

// Partial reports whether some but not all items failed.
func (b BatchResult) Partial() bool {
	return len(b.Failed) > 0 && len(b.Succeeded) > 0
}

// Err joins the item failures, or returns nil when every item succeeded.
func (b BatchResult) Err() error {
	if len(b.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(b.Failed))
	for _, f := range b.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.ID, f.Err))
	}
	return errors.Join(errs...)
}

// Summary is a one-line description for the user.
func (b BatchResult) Summary() string {
	if len(b.Failed) == 0 {
		return fmt.Sprintf("%d succeeded", len(b.Succeeded))
	}
	ids := make([]string, len(b.Failed))
	for i, f := range b.Failed {
		ids[i] = f.ID
	}
	return fmt.Sprintf("%d succeeded, %d failed (%s)", len(b.Succeeded), len(b.Failed), strings.Join(ids, ", "))
}
