//go:build linux || darwin || freebsd || netbsd || openbsd

package privilege

import "golang.org/x/sys/unix"

func platformSyscalls() Syscalls {
	return Syscalls{
		Setgroups: func(gids []int) error {
			// Only root may change supplementary groups.
			if unix.Geteuid() != 0 {
				return nil
			}
			return unix.Setgroups(gids)
		},
		Setgid: unix.Setgid,
		Setuid: unix.Setuid,
	}
}
