package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

type HTTPError struct {
	Code  int
	Inner error
}

func (e HTTPError) Error() string {
	statusText := http.StatusText(e.Code)
	if statusText != "" {
		statusText = " " + statusText
	}
	return fmt.Sprintf("HTTP %d%s: %s", e.Code, statusText, e.Inner.Error())
}

func (e HTTPError) Unwrap() error { return e.Inner }

// StatusOf returns the HTTP status code that err maps to.
func StatusOf(err error) int {
	var (
		httpErr       HTTPError
		inputErr      sinkhorn.InvalidInputError
		negativeErr   sinkhorn.NegativeValueError
		configErr     sinkhorn.InvalidConfigError
		degeneracyErr sinkhorn.NumericDegeneracyError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.As(err, &inputErr),
		errors.As(err, &negativeErr),
		errors.As(err, &configErr):
		return http.StatusBadRequest
	case errors.As(err, &degeneracyErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
