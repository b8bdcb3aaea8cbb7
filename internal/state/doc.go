// Package state implements device state projection and merge.
//
// A DeviceState is a compact, queryable summary of a device assignment's
// current condition: identity references, recency timestamps, and bounded
// windows of recent location, measurement and alert activity. Event batches
// are folded into the record by the merge Engine; the Manager coordinates
// persistence, token resolution for searches, and change notification.
//
// Records are persisted through the Repository interface. The SQLite
// implementation stores the recent event windows as JSON columns so a
// window truncation replaces the collection atomically with the row.
package state
