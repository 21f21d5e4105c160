package ops

import "github.com/ghartrid/voltree/internal/apierr"

// Sentinel errors for the Operations API façade, one per spec.md §7
// taxonomy entry. They alias internal/apierr's sentinels rather than
// redeclaring them, since apierr is already the error vocabulary every
// lower layer (namespace, branch, policy, quota) returns; callers that
// only import ops still get a name for each taxonomy entry without a
// second set of errors.New values to keep in sync with apierr's.
var (
	ErrInvalidArgument = apierr.ErrInvalidArgument
	ErrNotFound        = apierr.ErrNotFound
	ErrExists          = apierr.ErrExists
	ErrNotADirectory   = apierr.ErrNotADirectory
	ErrIsADirectory    = apierr.ErrIsADirectory
	ErrPermDenied      = apierr.ErrPermDenied
	ErrQuotaExceeded   = apierr.ErrQuotaExceeded
	ErrConflict        = apierr.ErrConflict
	ErrDeniedByPolicy  = apierr.ErrDeniedByPolicy
	ErrIO              = apierr.ErrIO
	ErrFormat          = apierr.ErrFormat
	ErrCapacity        = apierr.ErrCapacity
	ErrLoopDetected    = apierr.ErrLoopDetected
)
