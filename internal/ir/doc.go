// Package ir provides the shared representation types for TA2.
//
// This package contains the Value tagged union used for hyperparameters and
// scores, the primitive descriptor reference, and the structural pipeline
// document that persistence writes and DescribeSolution returns. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Lists are homogeneous by construction (one Go type per list kind)
//   - Non-finite doubles are rejected at every serialization boundary
//   - All JSON tags use snake_case
//   - Document digests use RFC 8785 canonical JSON with domain separation
package ir
