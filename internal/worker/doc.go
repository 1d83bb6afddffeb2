// Package worker launches external worker processes and supervises them.
//
// A worker receives its input as a single argv element (never through a
// shell), writes its answer to stdout/stderr, and exits. Combined output is
// captured up to a byte cap; anything past the cap is dropped and the output
// is flagged as truncated.
//
// Termination:
//   - Terminate sends SIGTERM to the worker's process group
//   - After the grace period, SIGKILL is sent if the worker is still running
//   - The hard timeout runs the same sequence and Wait reports ErrTimedOut
package worker
