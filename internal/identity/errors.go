package identity

import "errors"

var (
	ErrNotFound     = errors.New("identity: not found")
	ErrConflict     = errors.New("identity: already exists")
	ErrInvalidInput = errors.New("identity: invalid input")
	ErrUnauthorized = errors.New("identity: unauthorized")
)
