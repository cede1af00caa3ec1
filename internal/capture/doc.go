// Package capture owns the sampled-trace data model.
//
// Ownership boundary:
// - immutable sample stream and channel addressing
// - decode windows
// - channel role assignment
//
// Sub-packages move streams between processes (wire) and fetch them from
// local or remote storage (source). Acquisition itself lives elsewhere.
package capture
