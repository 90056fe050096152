package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidBlockRequest occurs when a block is requested on a non-blockable account type.
	ErrInvalidBlockRequest = errors.New("account type cannot be blocked")
	// ErrAccountNotActive occurs when a block is requested on a non-active account.
	ErrAccountNotActive = errors.New("account is not active")
	// ErrAccountNotBlocked occurs when an unblock is requested on a non-blocked account.
	ErrAccountNotBlocked = errors.New("account is not blocked")
	// ErrConcurrentModification indicates a version check lost against a concurrent writer.
	ErrConcurrentModification = errors.New("account modified concurrently")
	// ErrArchivalPartialFailure indicates one of the two archival store writes failed.
	// The operation is safe to retry to completion.
	ErrArchivalPartialFailure = errors.New("archival partially failed")
	// ErrStoreUnavailable indicates a transient storage failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)
