package util

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailRegistered    = errors.New("email is already registered")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadyTerminal    = errors.New("submission already reached a terminal state")
)
