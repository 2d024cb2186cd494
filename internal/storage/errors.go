package storage

import "errors"

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrInvalidData       = errors.New("invalid data")
)
