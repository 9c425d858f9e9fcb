package hooks

import "errors"

var (
	// ErrInvalidIdentifier indicates a scope name failed allow-list
	// validation. It is returned before any remote call is attempted.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrNotAuthenticated indicates the remote platform rejected or lacks
	// stored credentials.
	ErrNotAuthenticated = errors.New("not authenticated with remote platform")
	// ErrNoURLAvailable indicates the tunnel hostname or delivery config is
	// missing, so no desired webhook URL can be built.
	ErrNoURLAvailable = errors.New("no public webhook URL available")
	// ErrNoTokenConfigured indicates the webhook secret required for a
	// registration's delivery config is absent.
	ErrNoTokenConfigured = errors.New("no webhook secret configured")
	// ErrAlreadySubscribed indicates a subscription record already exists
	// for the repository; unsubscribe first.
	ErrAlreadySubscribed = errors.New("repository already subscribed")
	// ErrNotSubscribed indicates no subscription record exists for the
	// repository.
	ErrNotSubscribed = errors.New("repository not subscribed")
	// ErrRemoteCallFailed indicates the remote platform call failed; the
	// wrapped detail carries the remote error text.
	ErrRemoteCallFailed = errors.New("remote call failed")
	// ErrNoExistingRegistration indicates an explicit update found no
	// registration with the old URL.
	ErrNoExistingRegistration = errors.New("no existing registration to update")
	// ErrInvalidResponseFormat indicates the remote returned output the
	// reconciler could not parse.
	ErrInvalidResponseFormat = errors.New("unparseable remote response")
)

// ErrorKind classifies reconciler failures for transport-specific mapping.
type ErrorKind string

const (
	ErrorUnknown                = ErrorKind("unknown")
	ErrorInvalidIdentifier      = ErrorKind("invalid_identifier")
	ErrorNotAuthenticated       = ErrorKind("not_authenticated")
	ErrorNoURLAvailable         = ErrorKind("no_url_available")
	ErrorNoTokenConfigured      = ErrorKind("no_token_configured")
	ErrorAlreadySubscribed      = ErrorKind("already_subscribed")
	ErrorNotSubscribed          = ErrorKind("not_subscribed")
	ErrorRemoteCallFailed       = ErrorKind("remote_call_failed")
	ErrorNoExistingRegistration = ErrorKind("no_existing_registration")
	ErrorInvalidResponseFormat  = ErrorKind("invalid_response_format")
)

// ClassifyError maps a returned reconciler error onto its kind.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorUnknown
	case errors.Is(err, ErrInvalidIdentifier):
		return ErrorInvalidIdentifier
	case errors.Is(err, ErrNotAuthenticated):
		return ErrorNotAuthenticated
	case errors.Is(err, ErrNoURLAvailable):
		return ErrorNoURLAvailable
	case errors.Is(err, ErrNoTokenConfigured):
		return ErrorNoTokenConfigured
	case errors.Is(err, ErrAlreadySubscribed):
		return ErrorAlreadySubscribed
	case errors.Is(err, ErrNotSubscribed):
		return ErrorNotSubscribed
	case errors.Is(err, ErrNoExistingRegistration):
		return ErrorNoExistingRegistration
	case errors.Is(err, ErrInvalidResponseFormat):
		return ErrorInvalidResponseFormat
	case errors.Is(err, ErrRemoteCallFailed):
		return ErrorRemoteCallFailed
	default:
		return ErrorUnknown
	}
}
