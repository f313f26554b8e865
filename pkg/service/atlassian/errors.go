package atlassian

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrAuthExpired indicates the connection's grant is no longer
	// usable. Not retryable; the user has to reconnect.
	ErrAuthExpired = goerr.New("authentication expired, reconnect required")

	// ErrRateLimitExceeded indicates the API kept returning 429 until
	// the retry budget ran out
	ErrRateLimitExceeded = goerr.New("rate limit exceeded")

	// ErrTransient indicates a server-side or network failure that
	// outlived the retry budget. Safe to retry the whole operation
	// later.
	ErrTransient = goerr.New("transient API failure")

	// ErrInvalidPayload indicates a single entity in a response could
	// not be decoded. Callers skip the entity and keep consuming the
	// stream.
	ErrInvalidPayload = goerr.New("invalid payload")
)
