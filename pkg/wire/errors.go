package wire

import "errors"

// Protocol errors. Callers match them with errors.Is; the returned errors carry
// additional context.
var (
	// ErrInvalidField indicates a header or payload field out of range.
	ErrInvalidField = errors.New("invalid field")

	// ErrAccessMismatch indicates the payload shape does not fit the message access target.
	ErrAccessMismatch = errors.New("access mismatch")

	// ErrMissingReadLength indicates a read payload was attached without a read length.
	ErrMissingReadLength = errors.New("missing read length")

	// ErrMissingWriteData indicates a write payload was attached without data.
	ErrMissingWriteData = errors.New("missing write data")

	// ErrMissingPayload indicates no payload is attached to the message.
	ErrMissingPayload = errors.New("missing payload")

	// ErrShapeMismatch indicates the requested payload shape does not fit the message.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrUnsupportedWidth indicates a data width other than Byte, Word or Long.
	ErrUnsupportedWidth = errors.New("unsupported width")

	// ErrDuplicateParameter indicates the parameter key already exists in the tree.
	ErrDuplicateParameter = errors.New("duplicate parameter")

	// ErrParameterNotFound indicates the parameter key is not in the tree.
	ErrParameterNotFound = errors.New("parameter not found")

	// ErrParameterType indicates the stored parameter cannot be read as the requested type.
	ErrParameterType = errors.New("parameter type mismatch")

	// ErrDecode indicates malformed or truncated wire data.
	ErrDecode = errors.New("decode error")
)
