package models

import "errors"

// Failure taxonomy for the messaging core. Every failure is a value;
// callers branch with errors.Is and nothing here aborts the process.
var (
	// ErrInvalidContent: a draft with neither text nor media.
	ErrInvalidContent = errors.New("message has neither text nor media")
	// ErrForbidden: the actor lacks rights for the requested
	// mutation (wrong sender, wrong receiver, or not connected).
	ErrForbidden = errors.New("forbidden")
	// ErrEditWindowExpired: edit attempted after the window closed.
	ErrEditWindowExpired = errors.New("edit window expired")
	// ErrEmptyText: an edit whose replacement text trims to empty.
	ErrEmptyText = errors.New("edit text is empty")
	// ErrNotFound: referenced message or conversation is absent.
	ErrNotFound = errors.New("not found")
)
