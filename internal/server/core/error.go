package core

// Error codes
const (
	ErrGameNotFound      = "GAME_NOT_FOUND"
	ErrForbidden         = "FORBIDDEN"
	ErrRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrInvalidContent    = "INVALID_CONTENT_TYPE"
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrInvalidFEN        = "INVALID_FEN"
	ErrInternalError     = "INTERNAL_ERROR"
	ErrStorageDisabled   = "STORAGE_DISABLED"
	ErrUnauthorized      = "UNAUTHORIZED"
)
