package nowa

import "nowa-go/internal/errs"

// Error kinds shared by every layer. Callers test them with errors.Is.
var (
	ErrNotFound   = errs.ErrNotFound
	ErrConflict   = errs.ErrConflict
	ErrIO         = errs.ErrIO
	ErrValidation = errs.ErrValidation
	ErrIntegrity  = errs.ErrIntegrity
)
