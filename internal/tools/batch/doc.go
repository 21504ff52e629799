// Package batch runs one tool operation over several item IDs and reports
// the per-item outcome.
//
// A batch stops at the first expired or insufficient credential: the session has to be
// reconnected before any further item can succeed, so the remaining items
// are reported as skipped and the failure is returned to the caller.
package batch
