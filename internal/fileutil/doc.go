// Package fileutil holds small filesystem helpers shared by the registry and
// the daemon runtime: atomic commits and log pointer maintenance.
package fileutil
