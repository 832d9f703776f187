package engine

import "errors"

// Initialization failure classes. Backend and storage failures are
// configuration problems the user has to fix; everything else (network,
// timeouts) is worth retrying.
var (
	// ErrBackendUnsupported means the host cannot run local inference at
	// all (no compatible runtime or accelerator).
	ErrBackendUnsupported = errors.New("local inference backend not supported on this system")

	// ErrStorageQuota means there is not enough storage for model files.
	ErrStorageQuota = errors.New("not enough storage space for model files")
)

// Retryable reports whether an initialization error is worth retrying
// without the user changing anything.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBackendUnsupported) || errors.Is(err, ErrStorageQuota) {
		return false
	}
	return true
}
