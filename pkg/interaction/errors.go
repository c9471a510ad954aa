package interaction

import "errors"

// Request errors. A server answers requests failing with any of these, or
// with a wire or hardware error, with a Nack.
var (
	// ErrNotRequest indicates an incoming message that already carries an ack.
	ErrNotRequest = errors.New("message is not a request")

	// ErrUnsupportedCommand indicates a command the server does not serve.
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrUnsupportedAccess indicates an access target the command cannot use.
	ErrUnsupportedAccess = errors.New("unsupported access target")

	// ErrNoBackend indicates the server has no hardware for the access target.
	ErrNoBackend = errors.New("no hardware backend")

	// ErrRateLimited indicates the connection exceeded its request rate.
	ErrRateLimited = errors.New("rate limited")
)

// Client errors.
var (
	// ErrRequestTimeout indicates no reply arrived within the request timeout.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrNack indicates the server answered with a Nack.
	ErrNack = errors.New("request not acknowledged")

	// ErrRejected indicates the server could not decode the request. It is
	// reported together with ErrNack.
	ErrRejected = errors.New("request rejected as undecodable")

	// ErrUnexpectedReply indicates a reply that does not match the request.
	ErrUnexpectedReply = errors.New("unexpected reply")
)
