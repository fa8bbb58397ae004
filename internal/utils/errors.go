package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// CustomError is an error that carries the HTTP status it should surface as.
type CustomError struct {
	Code    int
	Message string
	Err     error
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CustomError) Unwrap() error { return e.Err }

func New(code int, message string) error {
	return &CustomError{
		Code:    code,
		Message: message,
	}
}

// Wrap annotates err with a status code and message.
func Wrap(code int, message string, err error) error {
	return &CustomError{Code: code, Message: message, Err: err}
}

// BadRequest is shorthand for a 400 CustomError.
func BadRequest(format string, args ...any) error {
	return New(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

var statusMap []statusMapping

type statusMapping struct {
	target error
	code   int
}

// RegisterStatus associates a sentinel error with an HTTP status. Packages
// call it from init so the API layer does not need to import them all.
func RegisterStatus(target error, code int) {
	statusMap = append(statusMap, statusMapping{target: target, code: code})
}

// StatusCode reports the HTTP status for err, defaulting to 500.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ce *CustomError
	if errors.As(err, &ce) && ce.Code != 0 {
		return ce.Code
	}
	for _, m := range statusMap {
		if errors.Is(err, m.target) {
			return m.code
		}
	}
	return http.StatusInternalServerError
}
