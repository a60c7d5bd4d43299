// Package export renders report records to CSV, XLSX and JSON files and
// runs batch exports on a background goroutine.
//
// A batch works on a deep copy of the records taken when it is dispatched,
// so the host may keep editing while an export runs. Cancellation is
// checked between records; files already written are kept and the batch
// ends with a cancelled summary rather than an error.
package export
