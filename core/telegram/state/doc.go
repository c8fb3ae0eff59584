// Package state stores per-user conversation sessions. Sessions are
// ephemeral: every store expires them after an idle TTL and nothing here
// is meant to be durable.
package state
