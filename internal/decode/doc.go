// Package decode defines the decoder task contract and the machinery around it.
//
// Ownership boundary:
//   - Context: one run's stream, usable bounds, cancellation and sinks.
//   - Task: Configure stores roles and window; Run scans once per configuration.
//   - Result: immutable records ordered by interval start.
//   - Registry and Runner: id-to-factory lookup and concurrent execution of jobs
//     against a shared read-only stream.
//
// Protocol state machines live in internal/decoders.
package decode
