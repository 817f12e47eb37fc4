package core

import "net/http"

// RequestError is a request failure that maps onto an HTTP status.
// Handlers return these for everything the caller can act on; anything
// else is treated as an internal error.
type RequestError struct {
	Status int
	Msg    string
}

func (e *RequestError) Error() string { return e.Msg }

// ValidationErr rejects malformed request shape before any side effect.
func ValidationErr(msg string) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Msg: msg}
}

// NotFoundErr reports an unknown record id.
func NotFoundErr(msg string) *RequestError {
	return &RequestError{Status: http.StatusNotFound, Msg: msg}
}

// PreconditionErr reports a well-formed request against a record that is
// not in the required state, e.g. a missing transcription.
func PreconditionErr(msg string) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Msg: msg}
}

// UpstreamErr reports a provider failure. Never retried internally.
func UpstreamErr(msg string) *RequestError {
	return &RequestError{Status: http.StatusBadGateway, Msg: msg}
}
