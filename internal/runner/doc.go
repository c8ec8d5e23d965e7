// Package runner triggers out-of-process task execution through rcc.
//
// RCCRunner.Run is synchronous: it writes the run's environment variables to
// devdata/env.json, invokes `rcc run --robot <manifest> --task <name>`, and
// returns the exit status, captured streams, and any JSON artifacts found
// in the workspace output directory. Launch wraps Run for the dispatch
// loop's fire-and-forget contract: the loop hands an invocation off and
// never awaits the result.
//
// Retry policy is rcc's concern, not this package's; a failed run is
// reported as an unsuccessful Result, never retried here.
package runner
