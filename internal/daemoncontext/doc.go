// Package daemoncontext describes the environment a daemon was launched with
// and decides whether a running daemon can serve a client.
//
// A Context is built once when a daemon starts and never changes afterwards;
// it travels through the registry and the IPC handshake as plain JSON. A
// CompatibilitySpec is built per connection attempt from the context a client
// requires and is a pure predicate over candidate contexts.
package daemoncontext
