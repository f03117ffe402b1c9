package engine

import "errors"

var (
	// ErrDisabled rejects every request while notifications are off.
	ErrDisabled = errors.New("notifications disabled")
	// ErrTypeDisabled rejects a type switched off in settings.
	ErrTypeDisabled    = errors.New("notification type disabled")
	ErrStopped         = errors.New("engine not running")
	ErrInvalidSettings = errors.New("invalid settings")
	ErrNoRegistry      = errors.New("engine: template registry required")
	ErrNoRenderer      = errors.New("engine: renderer required")
)

// IsRejected reports an admission rejection. Rejections are expected outcomes,
// not failures, and carry the null id.
func IsRejected(err error) bool {
	return errors.Is(err, ErrDisabled) || errors.Is(err, ErrTypeDisabled)
}
