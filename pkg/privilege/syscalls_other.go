//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package privilege

func platformSyscalls() Syscalls {
	return Syscalls{}
}
