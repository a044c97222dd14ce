package services

import "errors"

// ErrNotFound indicates the requested read-model row does not exist.
var ErrNotFound = errors.New("not found")
