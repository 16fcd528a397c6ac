package service

import (
	"errors"
	"fmt"
)

// Ошибки сервиса
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidURL       = fmt.Errorf("%w: url must start with http:// or https://", ErrInvalidInput)
	ErrInvalidExpiry    = fmt.Errorf("%w: expiry out of range", ErrInvalidInput)
	ErrNotFound         = errors.New("mapping not found")
	ErrCreationFailed   = errors.New("failed to allocate short id")
	ErrStoreUnavailable = errors.New("record store unavailable")
)
