package nip69

import (
	"errors"
	"fmt"
)

// Code is the stable numeric error code reported to payers.
type Code int

const (
	InvalidOffer       Code = 1
	TemporaryFailure   Code = 2
	ExpiredOffer       Code = 3
	UnsupportedFeature Code = 4
	InvalidAmount      Code = 5
)

// Message returns the human-readable text for c.
func (c Code) Message() string {
	switch c {
	case InvalidOffer:
		return "Invalid Nostr Offer"
	case TemporaryFailure:
		return "Temporary Failure"
	case ExpiredOffer:
		return "Expired Offer"
	case UnsupportedFeature:
		return "Unsupported Feature"
	case InvalidAmount:
		return "Invalid Amount"
	default:
		return fmt.Sprintf("Unknown Error (%d)", int(c))
	}
}

func (c Code) known() bool {
	return c >= InvalidOffer && c <= InvalidAmount
}

// ProtocolError is the only error type RequestInvoice returns.
//
// Message is safe to show to the far side; Err holds the internal cause and
// is only for logs.
type ProtocolError struct {
	Code    Code
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (code %d): %v", e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func newError(code Code, cause error) *ProtocolError {
	return &ProtocolError{Code: code, Message: code.Message(), Err: cause}
}

// AsProtocolError extracts a *ProtocolError from err's chain.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CodeOf returns the code carried by err. Unclassified errors are
// temporary failures.
func CodeOf(err error) Code {
	if pe, ok := AsProtocolError(err); ok {
		return pe.Code
	}
	return TemporaryFailure
}

// classify wraps err unless it is already a *ProtocolError.
func classify(err error) *ProtocolError {
	if pe, ok := AsProtocolError(err); ok {
		return pe
	}
	return newError(TemporaryFailure, err)
}
