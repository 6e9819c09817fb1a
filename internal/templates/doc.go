// Package templates holds the pipeline template library and the grid
// proposer built on it.
//
// Templates are written in CUE and checked against an embedded schema
// (schema.cue). The default library (default.cue) is embedded in the
// binary; a directory of .cue files may add templates or replace defaults
// of the same name.
//
// Each template expands into one candidate pipeline per point of its
// hyperparameter grid. Candidates are enumerated lazily in template order,
// then grid order, so a search consuming them under a time bound or a
// candidate quota sees a deterministic prefix.
package templates
