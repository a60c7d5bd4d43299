package repository

import "github.com/maintlog/maintlog/pkg/query"

// Select marks one record. Unknown ids are ignored and reported as false.
func (r *Repository) Select(id string) bool {
	if r.indexOf(id) < 0 {
		return false
	}
	r.selected[id] = struct{}{}
	return true
}

// Deselect unmarks one record.
func (r *Repository) Deselect(id string) {
	delete(r.selected, id)
}

// SelectAll replaces the selection with every record the filter shows.
// Records hidden by the filter are never selected. Returns the count.
func (r *Repository) SelectAll(filter query.Filter) int {
	ids := query.SelectAll(r.records, r.scope(filter))
	r.selected = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		r.selected[id] = struct{}{}
	}
	return len(ids)
}

// ClearSelection unmarks every record.
func (r *Repository) ClearSelection() {
	clear(r.selected)
}

// IsSelected reports whether id is marked.
func (r *Repository) IsSelected(id string) bool {
	_, ok := r.selected[id]
	return ok
}

// Selected returns the marked ids in display order.
func (r *Repository) Selected() []string {
	ids := make([]string, 0, len(r.selected))
	for _, rec := range r.records {
		if _, ok := r.selected[rec.ID]; ok {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}
