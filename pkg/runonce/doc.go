// Package runonce runs a named unit of work in exactly one worker of a
// bedrock cluster.
//
// Workers use a [Client]; the primary keeps a [Registry] and arbitrates.
// The first worker to ask for an id runs the work. Every other worker that
// asks, before or after, receives the owner's result. Errors cross the
// process boundary through package apperr and come back as *apperr.Error
// with the original name and details.
//
//	err := client.Do(ctx, "seed-users", func(ctx context.Context) error {
//		return seedUsers(ctx)
//	}, runonce.AllowOnRestart())
//
// If the owner crashes before completing, a record created with
// [AllowOnRestart] is dropped so a replacement worker can try again.
// Without it the record stays pending forever and waiters only return when
// their context ends.
package runonce
