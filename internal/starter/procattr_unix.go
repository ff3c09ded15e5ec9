//go:build unix

package starter

import "syscall"

// sysProcAttr detaches the daemon into a new session so it survives the
// client and its terminal.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
