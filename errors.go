package video_grabber

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery          = errors.New("please paste a video link first")
	ErrBusy                = errors.New("another request is in progress")
	ErrSessionClosed       = errors.New("session closed")
	ErrMissingFormats      = errors.New("response has no formats")
	ErrMalformedFormat     = errors.New("response has a malformed format entry")
	ErrMissingDownloadLink = errors.New("response has no download link")
)

// NetworkError means the request never produced a response: transport failure, cancellation or timeout.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ResponseError means a response arrived but was unusable: bad status, malformed body, or missing fields.
type ResponseError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: unexpected response (status %d): %v", e.Endpoint, e.StatusCode, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is a local input problem rather than a request failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyQuery)
}
