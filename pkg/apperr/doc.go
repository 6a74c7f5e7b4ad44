// Package apperr defines the named, structured error used across process boundaries.
//
// Errors never travel between the primary and its workers as Go values. They are
// converted to a [Wire] record (name, message, details, nested cause) with [Encode],
// sent over IPC, and rebuilt on the other side with [Decode]:
//
//	w := apperr.Encode(apperr.New("DuplicateError", "already seeded", map[string]any{
//		"collection": "users",
//	}))
//
//	err := apperr.Decode(w) // *apperr.Error with the same name and details
//
// Errors that are not *Error values are encoded under [DefaultName] with their
// message, and their unwrap chain becomes the cause chain.
package apperr
