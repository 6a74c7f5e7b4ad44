package runonce

import "github.com/dmitrymomot/bedrock/pkg/ipc"

// Option configures a run-once request.
type Option func(*ipc.RunOnceOptions)

// AllowOnRestart lets a replacement worker retry the work when the owner
// crashes before finishing it.
func AllowOnRestart() Option {
	return func(o *ipc.RunOnceOptions) {
		o.AllowOnRestart = true
	}
}
