package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quillfin/quill/internal/common"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrEmptySlice   = errors.New("slice cannot be empty")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// storageErr wraps driver-level failures in the typed storage-unavailable
// condition the engines propagate to callers.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrStorageUnavailable, op, err)
}
