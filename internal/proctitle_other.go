//go:build !linux

package internal

// setProcessTitle is a no-op where the process name cannot be changed at
// run time. Workers still carry their title in argv[0].
func setProcessTitle(string) error { return nil }
