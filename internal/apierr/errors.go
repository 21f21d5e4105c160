// Package apierr declares the Engine's closed error taxonomy
// (spec.md §7). Every component returns one of these sentinels (wrapped
// with context via fmt.Errorf's %w) rather than inventing ad-hoc error
// types; callers classify failures with errors.Is.
package apierr

import "errors"

var (
	// ErrInvalidArgument means the caller supplied a malformed request
	// (empty name, negative length, ...).
	ErrInvalidArgument = errors.New("invalid-argument")

	// ErrNotFound means the referenced path, view, branch, or hash does
	// not exist in the current scope.
	ErrNotFound = errors.New("not-found")

	// ErrExists means a create/rename target name is already taken.
	ErrExists = errors.New("exists")

	// ErrNotADirectory means a directory-only operation targeted a
	// non-directory entry.
	ErrNotADirectory = errors.New("not-a-directory")

	// ErrIsADirectory means a file-only operation targeted a directory.
	ErrIsADirectory = errors.New("is-a-directory")

	// ErrPermDenied means the access context failed the permission
	// check for the requested entry or parent directory.
	ErrPermDenied = errors.New("perm-denied")

	// ErrQuotaExceeded means the post-mutation state would violate an
	// active quota limit.
	ErrQuotaExceeded = errors.New("quota-exceeded")

	// ErrConflict is returned by a merge when a path changed on both
	// sides to different blob identities.
	ErrConflict = errors.New("conflict")

	// ErrDeniedByPolicy means the Policy Engine's verdict for this
	// operation's policy kind was deny.
	ErrDeniedByPolicy = errors.New("denied-by-policy")

	// ErrIO is a failure talking to the sector device.
	ErrIO = errors.New("io")

	// ErrFormat means a loaded volume failed magic/version/checksum
	// validation.
	ErrFormat = errors.New("format")

	// ErrCapacity means a fixed-capacity structure (the audit ring, a
	// bounded reason string) would overflow.
	ErrCapacity = errors.New("capacity")

	// ErrLoopDetected means symlink resolution exceeded the bounded
	// depth.
	ErrLoopDetected = errors.New("loop-detected")
)
