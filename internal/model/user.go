package model

import "time"

// User mirrors the `users` table.  User accounts are owned by the
// external account system; this service reads them and updates only the
// primary email attribute.  The Email field holds the user's primary
// email address, which is not required to have a matching EmailAddress
// record except when it was provisioned through the user-created hook.
//
// Fields:
//  ID        – primary key identifier of the user.
//  Email     – the user's primary email address.
//  CreatedAt – timestamp of creation.
//  UpdatedAt – timestamp of last update.
type User struct {
	ID        uint64    // users.id
	Email     string    // users.email
	CreatedAt time.Time // users.created_at
	UpdatedAt time.Time // users.updated_at
}
