// Package store provides SQLite-backed persistence for fitted pipelines.
//
// Store implements persist.Backend with two tables:
//   - fitted_pipelines: one structural document per fitted pipeline
//   - step_blobs: one fitted-state blob per (fitted_pipeline_id, step_index)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention instead of failing
//   - One open connection: SQLite allows a single writer
//
// Schema changes are tracked with PRAGMA user_version.
package store
