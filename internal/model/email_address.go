package model

import "time"

// EmailAddress represents one email address bound to a user, as stored
// in the `email_addresses` table.  A user may have many addresses; each
// address carries its own confirmation key and confirmation state.  The
// json tags are omitted because these structs are used internally by the
// repository layer; handlers define separate response types.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – owner of the address (references users.id).
//  Email       – the address itself.  Unique per user.
//  Key         – random confirmation key.  Globally unique, at most 40 chars.
//  SetAt       – when the key was last (re)generated.  The expiration
//                window for the key is measured from this instant.
//  ConfirmedAt – when the address was confirmed, nil while unconfirmed.
//  CreatedAt   – creation timestamp.
type EmailAddress struct {
	ID          uint64     // email_addresses.id
	UserID      uint64     // email_addresses.user_id
	Email       string     // email_addresses.email
	Key         string     // email_addresses.confirmation_key
	SetAt       time.Time  // email_addresses.set_at
	ConfirmedAt *time.Time // email_addresses.confirmed_at (nullable)
	CreatedAt   time.Time  // email_addresses.created_at
}

// IsConfirmed reports whether the address has been confirmed.
func (a EmailAddress) IsConfirmed() bool { return a.ConfirmedAt != nil }

// KeyExpiresAt returns the instant the confirmation key stops working
// under the given period.  A zero period means keys never expire and
// nil is returned.
func (a EmailAddress) KeyExpiresAt(period time.Duration) *time.Time {
	if period <= 0 {
		return nil
	}
	t := a.SetAt.Add(period)
	return &t
}

// IsKeyExpired reports whether the confirmation key has expired at the
// given instant.  Expiration is a pure function of wall-clock time; no
// timers are involved.
func (a EmailAddress) IsKeyExpired(period time.Duration, now time.Time) bool {
	exp := a.KeyExpiresAt(period)
	return exp != nil && !now.Before(*exp)
}
