package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrNotInModel      = errors.New("table not part of the model")
)
