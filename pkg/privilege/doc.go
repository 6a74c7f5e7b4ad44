// Package privilege changes the process user and group exactly once.
//
// Workers usually start as root to bind privileged ports and then drop to an
// unprivileged account. The first worker to do so notifies the primary, which
// drops its own privileges with the same [Switcher] semantics: any number of
// calls, one switch.
package privilege
