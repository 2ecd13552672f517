package domain

import "errors"

var (
	// ErrConfiguration marks errors that are fatal to the invoked operation.
	ErrConfiguration = errors.New("configuration error")
	// ErrConnectivity marks failures talking to a store or an external model.
	ErrConnectivity      = errors.New("connectivity error")
	ErrUnknownMode       = errors.New("unknown retrieval mode")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyQuery        = errors.New("empty query")
)
