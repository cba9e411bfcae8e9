package scenario

import (
	"errors"
	"fmt"
)

// expect compares a reported value with the expected one.
func expect[T comparable](what string, got, want T) error {
	if got != want {
		return fmt.Errorf("%w: %s is %v, want %v", ErrVerification, what, got, want)
	}
	return nil
}

// expectCode checks err is an API error with the given HTTP status.
func expectCode(what string, err error, status int) error {
	if err == nil {
		return fmt.Errorf("%w: %s succeeded, want http %d", ErrVerification, what, status)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	return expect(what+" status", apiErr.Status, status)
}
