package services

import (
	"errors"
	"piiquante/internal/store"
)

var (
	ErrNotFound           = store.ErrNotFound
	ErrConflict           = store.ErrConflict
	ErrForbidden          = errors.New("only the owner can change this sauce")
	ErrValidation         = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("authentication required")
)
