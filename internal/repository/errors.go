// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// email service and handlers to distinguish between different failure
// scenarios. For example, ErrDuplicateAddress indicates that an email
// address is already bound to the user, while ErrConfirmationExpired
// signals that a confirmation key matched a record but its expiration
// window has elapsed.
package repository

import "errors"

// ErrDuplicateAddress is returned when an insert collides with the
// unique constraint on (user_id, email). Handlers should translate
// this into an HTTP 409 response.
var ErrDuplicateAddress = errors.New("email address already exists")

// ErrAddressNotFound is returned when a lookup by email or by
// confirmation key matches no record for the given scope. Handlers
// should translate this into an HTTP 404 response.
var ErrAddressNotFound = errors.New("email address not found")

// ErrConfirmationExpired is returned when a confirmation key is found
// but its expiration period has passed. The record is left untouched.
// Handlers should translate this into an HTTP 410 response.
var ErrConfirmationExpired = errors.New("confirmation key expired")
