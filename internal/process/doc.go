// Package process spawns and terminates the node sidecar.
//
// A Handle owns exactly one child process. The child runs in its own process
// group so termination reaches anything it forks. Its stdout and stderr are
// split into lines and delivered, together with a final Terminated event,
// on the channel returned by Events. That channel closes once both pipes
// have reached EOF and the child has been reaped.
//
// Kill may be called any number of times from any goroutine. Only the first
// call against a live child does anything; all others return ErrNotRunning.
//
// Example usage:
//
//	path, err := process.ResolveSidecar("mfer-node")
//	if err != nil {
//	    return err
//	}
//	h, err := process.Spawn(ctx, path, cfg.BuildArgs(), process.Options{
//	    GracefulTimeout: 5 * time.Second,
//	})
//	if err != nil {
//	    return err
//	}
//	for ev := range h.Events() {
//	    fmt.Println(ev)
//	}
//
// Process groups and signals are POSIX-only; the package targets Linux and macOS.
package process
