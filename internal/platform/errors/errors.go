package errors

import (
	stderrors "errors"
	"maps"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

// Domain is reported in every ErrorInfo detail this module attaches.
const Domain = "github.com/louisbranch/macrotable"

// Error is a coded failure. Message is for logs; the text a user sees is
// rendered from the catalog entry for Code, filled with Metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so errors.Is(err, New(code, ""))
// tests for a code anywhere in the chain.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Code == e.Code
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	if coded, ok := As(err); ok {
		return coded.Code
	}
	return CodeUnknown
}

func New(code Code, message string) *Error {
	return build(code, message, nil, nil)
}

// WithMetadata attaches template values for the localized message.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return build(code, message, metadata, nil)
}

func Wrap(code Code, message string, cause error) *Error {
	return build(code, message, nil, cause)
}

func WrapWithMetadata(code Code, message string, metadata map[string]string, cause error) *Error {
	return build(code, message, metadata, cause)
}

func build(code Code, message string, metadata map[string]string, cause error) *Error {
	var copied map[string]string
	if len(metadata) > 0 {
		copied = maps.Clone(metadata)
	}
	return &Error{Code: code, Message: message, Metadata: copied, Cause: cause}
}

// ToGRPCStatus maps e onto a status carrying an ErrorInfo (reason = code)
// and a LocalizedMessage holding userMessage in locale.
func (e *Error) ToGRPCStatus(locale string, userMessage string) error {
	base := status.New(e.Code.GRPCCode(), e.Message)
	detailed, err := base.WithDetails(
		&errdetails.ErrorInfo{Reason: string(e.Code), Domain: Domain, Metadata: e.Metadata},
		&errdetails.LocalizedMessage{Locale: locale, Message: userMessage},
	)
	if err != nil {
		return base.Err()
	}
	return detailed.Err()
}
