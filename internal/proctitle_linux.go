package internal

import "os"

// maxCommLen is the kernel limit of a task name, without the trailing NUL.
const maxCommLen = 15

// setProcessTitle renames the process as shown by ps and top. Workers
// additionally carry their title in argv[0].
func setProcessTitle(title string) error {
	if len(title) > maxCommLen {
		title = title[:maxCommLen]
	}
	// /proc/self/comm names the main thread, whichever thread runs this.
	return os.WriteFile("/proc/self/comm", []byte(title), 0)
}
