package certificate

import (
	"errors"
	"fmt"

	pdfutil "github.com/dharsanguruparan/certdossier/internal/pdf"
)

var (
	// ErrRemoteRequest means the issuance call did not complete with a
	// success status.
	ErrRemoteRequest = errors.New("remote request failed")
	// ErrRemoteLogic means the issuer answered but declared a failure or
	// left out the document reference.
	ErrRemoteLogic = errors.New("remote issuer declined")
	// ErrDownload means the document bytes could not be downloaded.
	ErrDownload = errors.New("document download failed")
	// ErrBodyTooLarge means an upstream answer exceeded its size cap. It is
	// always wrapped with the kind of the failing call.
	ErrBodyTooLarge = errors.New("response body too large")
	// ErrTextExtraction means the downloaded bytes are not a readable PDF.
	ErrTextExtraction = pdfutil.ErrTextExtraction
)

// StatusError carries the transport status code of a failed call.
type StatusError struct {
	Kind       error
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %d", e.Kind, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Kind
}

// WrapError attaches an error kind and the failing operation to err.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// StatusCode returns the transport status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
