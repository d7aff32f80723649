// Package workflow turns a finished GitHub Actions run into a strict,
// immutable model (Run, Job, Step, Results).
//
// The converters are the only place raw API records are inspected; every
// value that leaves this package has already been validated. Fetcher
// wraps the converters in a bounded retry loop because the Actions API
// can report a run as completed before all of its jobs are.
package workflow
