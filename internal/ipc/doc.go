// Package ipc exposes a daemon over JSON-RPC and ships the matching client.
//
// Daemons listen on `unix:<path>` or `tcp:<host:port>` addresses. Every
// accepted connection gets its own session: a client acquires the daemon with
// Hearth.Acquire and the session releases it again when the connection
// closes, so a crashed client never leaves a daemon stuck busy.
//
// Transport adapts the client to the connector, classifying dial failures as
// unreachable and lost acquire races as busy.
package ipc
