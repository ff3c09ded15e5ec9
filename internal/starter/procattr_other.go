//go:build !unix

package starter

import "syscall"

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}
