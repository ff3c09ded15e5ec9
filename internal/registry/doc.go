// Package registry persists the set of known daemons so later clients can find
// daemons started by earlier ones.
//
// Two backends share one contract: a JSON document committed by atomic rename
// and a WAL-mode SQLite table. Both serialize mutations with a gofrs/flock
// lock file next to the storage location, held only for a single Store,
// Remove, or MarkState call. List never takes the lock and never blocks on
// daemon liveness; it returns the last committed snapshot.
//
// Storage that cannot be read is treated as an empty registry. Losing a reuse
// opportunity only costs a daemon spawn, so the connector keeps working while a
// warning records the problem.
package registry
