// Package tokenstore holds the current credential for each provider and
// persists it to a durable per-provider slot so a restart does not force the
// user through consent again.
//
// The in-memory map is authoritative. Backends only see sealed JSON blobs.
package tokenstore
