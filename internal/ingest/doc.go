// Package ingest connects the state engine to the MQTT event plane.
//
// The Service subscribes to per-assignment ingest topics, decodes event
// batches, creates the state record on first contact with an assignment
// and folds every batch through the state manager. The Publisher runs
// the other direction: it listens for committed state changes and
// publishes the updated record for downstream consumers.
package ingest
