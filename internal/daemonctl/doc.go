// Package daemonctl implements operator actions over registered daemons:
// listing, liveness probes, pruning stale entries, and stopping daemons.
package daemonctl
