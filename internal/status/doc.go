// Package status is the durable verdict ledger.
//
// Every clip that completes the pipeline leaves exactly one live record,
// either in the approved table or the rejected table, keyed by video id.
// The pipeline consults the ledger before doing any detector work so a clip
// that already has a verdict is never judged twice. The store is SQLite in
// WAL mode; writers that hit SQLITE_BUSY back off and retry a bounded number
// of times before surfacing the failure.
package status
