// Package daemon runs one registered build daemon.
//
// A Daemon listens on its own address, announces itself in the registry as
// starting, then idle, and serves exactly one client at a time through the
// ipc package. An idle daemon that nobody acquires for the configured idle
// timeout stops itself and removes its registry entry. A per-UID flock keeps
// two processes from claiming the same daemon identity.
package daemon
