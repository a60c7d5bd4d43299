// Package stores provides the persistence layer for maintlog: the shared,
// partitioned report collection file, the draft-recovery directory, the
// SQLite audit journal and a watcher that notices foreign writes to the
// collection file.
package stores
