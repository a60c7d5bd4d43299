// Package repository is the operation set the host and the export pipeline
// call. A Repository owns the in-memory view of the report collection for
// the active project, applies every mutation to a copy, persists it through
// the collection store and commits the copy only once the save succeeded.
//
// A Repository is not safe for concurrent use. Background workers receive
// deep-copied snapshots from Snapshot and never touch the live view.
package repository
