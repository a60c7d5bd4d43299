// Package atomicfile writes whole files so that readers observe either the
// previous content or the new content, never a torn write.
//
// A write stages the payload in "<target>.tmp", fsyncs it, and renames it over
// the target. When enabled, the previous target is first copied to
// "<target>.bak"; after the rename the target is read back and checked with a
// caller-supplied predicate, and a failed check restores the backup.
package atomicfile
