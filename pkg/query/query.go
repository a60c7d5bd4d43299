// Package query filters the in-memory report collection.
package query

import (
	"sort"
	"strings"

	"github.com/maintlog/maintlog/pkg/stores"
)

// CategoryAll disables the category filter.
const CategoryAll = "ALL"

// Filter selects records. The zero value matches everything.
type Filter struct {
	// Project must equal the record's project when set.
	Project string

	// Category is a case-insensitive substring of the category field.
	// Empty and CategoryAll match every record.
	Category string

	// Text is a case-insensitive substring of ticket, requester,
	// technician or category.
	Text string
}

// searchFields are the fields free-text search looks at.
var searchFields = []string{
	stores.FieldTicket,
	stores.FieldRequester,
	stores.FieldTechnician,
	stores.FieldCategory,
}

func (f Filter) allCategories() bool {
	c := strings.TrimSpace(f.Category)
	return c == "" || strings.EqualFold(c, CategoryAll)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Match reports whether rec satisfies f.
func Match(rec stores.ReportRecord, f Filter) bool {
	if f.Project != "" && rec.Project != f.Project {
		return false
	}
	if !f.allCategories() && !containsFold(rec.Field(stores.FieldCategory), strings.TrimSpace(f.Category)) {
		return false
	}
	text := strings.TrimSpace(f.Text)
	if text == "" {
		return true
	}
	for _, key := range searchFields {
		if containsFold(rec.Field(key), text) {
			return true
		}
	}
	return false
}

// Apply returns the matching records in their original order.
func Apply(records []stores.ReportRecord, f Filter) []stores.ReportRecord {
	out := make([]stores.ReportRecord, 0, len(records))
	for _, r := range records {
		if Match(r, f) {
			out = append(out, r)
		}
	}
	return out
}

// SelectAll returns the ids of the records Apply would show, so hidden
// records are never selected.
func SelectAll(records []stores.ReportRecord, f Filter) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if Match(r, f) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Count returns how many records match.
func Count(records []stores.ReportRecord, f Filter) int {
	n := 0
	for _, r := range records {
		if Match(r, f) {
			n++
		}
	}
	return n
}

// Categories returns the distinct non-blank categories, sorted.
func Categories(records []stores.ReportRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		c := strings.TrimSpace(r.Field(stores.FieldCategory))
		if c != "" {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
