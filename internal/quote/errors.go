package quote

import (
	"errors"
	"fmt"
)

// The provider surfaces a small closed set of error kinds. None of them
// are retried internally; callers decide what a failure means.
var (
	// ErrFetchFailed covers transport failures and non-2xx responses.
	ErrFetchFailed = errors.New("fetching data from the quote service failed")

	// ErrDeserialize covers malformed JSON payloads.
	ErrDeserialize = errors.New("deserializing the quote service response failed")

	// ErrEmptyDataSet is returned when a chart block has no timestamps.
	ErrEmptyDataSet = errors.New("quote service returned an empty data set")

	// ErrDataInconsistency is returned when the parallel per-field arrays
	// of a chart block disagree in length with the timestamp array.
	ErrDataInconsistency = errors.New("quote service returned inconsistent data")

	// ErrProvider is returned when a payload parses as JSON but does not
	// match the expected envelope (typically a rate-limit or error page).
	ErrProvider = errors.New("quote service response did not match the expected shape")
)

// HTTPError carries the status of a rejected upstream response. It
// unwraps to ErrFetchFailed so callers can match on the kind alone.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

func (e *HTTPError) Unwrap() error { return ErrFetchFailed }

// IsProviderError reports whether err is any of the provider's error kinds.
func IsProviderError(err error) bool {
	return errors.Is(err, ErrFetchFailed) ||
		errors.Is(err, ErrDeserialize) ||
		errors.Is(err, ErrEmptyDataSet) ||
		errors.Is(err, ErrDataInconsistency) ||
		errors.Is(err, ErrProvider)
}
