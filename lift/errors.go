package lift

import "errors"

// ErrDuplicateWrite is returned when two successful write events produce
// the same (variable, value) pair. Spec invariant: a value other than the
// initial zero is produced by exactly one successful write.
var ErrDuplicateWrite = errors.New("lift: duplicate successful write for (variable, value)")

// ErrMissingWrite is returned when a successful read observes a
// (variable, value) pair that no successful write (nor the synthetic
// initial write of zero) ever produced. This marks the input history as
// malformed rather than merely inconsistent.
var ErrMissingWrite = errors.New("lift: read observes a value with no producing write")
