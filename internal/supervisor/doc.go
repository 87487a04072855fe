// Package supervisor keeps exactly one mfer-node running and lets callers
// swap it for one with a new config without losing the event stream.
//
// The Supervisor owns the installed config, the current process handle and
// the outbound relay.Sink. The sink is created once and never replaced;
// each handle gets its own relay goroutine feeding it.
//
// Restart steps:
//  1. Take and clear the current handle.
//  2. Kill it (failures are logged, never fatal) and wait, bounded, for its
//     relay to drain so old output precedes new output.
//  3. Spawn the new node. On failure respawn the previous config and emit
//     RestartFailed.
//  4. Emit Restarted and start the new relay.
//  5. Persist the config (failures are logged only).
//  6. Install config and handle under the state lock.
//
// Restarts are serialized by their own mutex; Inspect and Stats only take
// the short-lived state lock, so they observe either the old or the new
// config, never a mix.
package supervisor
