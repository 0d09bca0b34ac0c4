package store

import "errors"

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateForm  = errors.New("form already exists")
	ErrDuplicateField = errors.New("duplicate field name")
	ErrDuplicatePage  = errors.New("duplicate page key")
	ErrInvalidGraph   = errors.New("invalid form graph")
)
