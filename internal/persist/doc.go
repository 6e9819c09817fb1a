// Package persist saves and loads fitted pipelines.
//
// A fitted pipeline is stored as one structural document plus one opaque
// blob per step, addressed by (fitted_pipeline_id, step_index). Save writes
// every blob first and the document last, so the document doubles as a
// commit marker: a crash before it lands leaves nothing loadable, and a
// document whose blobs went missing is caught by the blob-count check in
// Load.
//
// Storage is abstracted by Backend. Implementations in this package cover a
// plain directory tree, BadgerDB, Redis and memory; internal/store adds
// SQLite.
package persist
