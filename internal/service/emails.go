// Package service implements the user-facing email operations layered
// on top of the address store. The service takes a user identifier and
// store handles as explicit dependencies; it never reaches into any
// global state. It maintains the invariant that a user's primary email
// must be confirmed unless the caller explicitly opts out, and emits
// domain events on state transitions through the injected publisher.
package service

import (
	"context"
	"errors"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/iliyamo/email-confirmation/internal/model"
	"github.com/iliyamo/email-confirmation/internal/queue"
	"github.com/iliyamo/email-confirmation/internal/repository"
)

// ErrEmailNotConfirmed is returned when a caller tries to set an
// unconfirmed address as primary without opting out of the check.
// Handlers should translate this into an HTTP 409 response.
var ErrEmailNotConfirmed = errors.New("email not confirmed")

// ErrEmailIsPrimary is returned when a caller tries to remove the
// address currently designated primary. Handlers should translate
// this into an HTTP 409 response.
var ErrEmailIsPrimary = errors.New("email is primary")

// ErrInvalidEmail is returned when an address fails format validation.
// Handlers should translate this into an HTTP 400 response.
var ErrInvalidEmail = errors.New("invalid email address")

// maxEmailLength matches the width of the email columns.
const maxEmailLength = 255

// UserStore is the slice of the user repository the service needs.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpdatePrimaryEmail(ctx context.Context, id uint64, email string) error
}

// AddressStore is the address-store contract the service delegates to.
// The production implementation is repository.EmailAddressRepo; tests
// substitute an in-memory fake.
type AddressStore interface {
	CreateConfirmed(ctx context.Context, userID uint64, email string) (model.EmailAddress, error)
	CreateUnconfirmed(ctx context.Context, userID uint64, email string, keyLength int) (model.EmailAddress, error)
	GetByUserAndEmail(ctx context.Context, userID uint64, email string) (model.EmailAddress, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.EmailAddress, error)
	ConfirmByKey(ctx context.Context, key string, userID uint64) (model.EmailAddress, bool, error)
	ResetConfirmation(ctx context.Context, addressID uint64) (string, error)
	Delete(ctx context.Context, userID uint64, email string) error
}

// EmailService bundles the stores and the event publisher behind the
// email lifecycle operations.
type EmailService struct {
	Users     UserStore
	Addresses AddressStore
	Events    queue.Publisher
	// DefaultKeyLength overrides the generator default for new
	// unconfirmed addresses when the caller does not request a length.
	// Zero defers to the generator.
	DefaultKeyLength int
}

func NewEmailService(users UserStore, addresses AddressStore, events queue.Publisher) *EmailService {
	return &EmailService{Users: users, Addresses: addresses, Events: events}
}

// publish sends an event without affecting the calling operation.
// Events are fire-and-forget: a broker outage must not fail a write
// that already committed.
func (s *EmailService) publish(ctx context.Context, ev queue.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		log.Printf("emails: publish %s failed: %v", ev.EventType(), err)
	}
}

// validateEmail normalizes and format-checks an address on the add
// paths. Returns the normalized address or ErrInvalidEmail.
func validateEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > maxEmailLength {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// GetPrimaryEmail returns the user's primary email address.
func (s *EmailService) GetPrimaryEmail(ctx context.Context, userID uint64) (string, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// SetPrimaryEmail designates an address as the user's primary email.
// With requireConfirmed true the address must exist and be confirmed,
// otherwise ErrEmailNotConfirmed is returned and the primary attribute
// is left unchanged. Setting the primary to its current value is a
// no-op and emits no event; on an actual change a PrimaryEmailChanged
// event is published.
func (s *EmailService) SetPrimaryEmail(ctx context.Context, userID uint64, email string, requireConfirmed bool) error {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if email == u.Email {
		return nil
	}
	if requireConfirmed {
		addr, err := s.Addresses.GetByUserAndEmail(ctx, userID, email)
		if err != nil && !errors.Is(err, repository.ErrAddressNotFound) {
			return err
		}
		if err != nil || !addr.IsConfirmed() {
			return ErrEmailNotConfirmed
		}
	}
	if err := s.Users.UpdatePrimaryEmail(ctx, userID, email); err != nil {
		return err
	}
	s.publish(ctx, queue.PrimaryEmailChangedEvent{UserID: userID, OldEmail: u.Email, NewEmail: email})
	return nil
}

// IsConfirmed reports whether the user's primary email has a confirmed
// address record. A primary without any record counts as unconfirmed.
func (s *EmailService) IsConfirmed(ctx context.Context, userID uint64) (bool, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	addr, err := s.Addresses.GetByUserAndEmail(ctx, userID, u.Email)
	if err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			return false, nil
		}
		return false, err
	}
	return addr.IsConfirmed(), nil
}

// ConfirmedAt returns the confirmation timestamp of the user's primary
// address, or nil while unconfirmed. The primary must have an address
// record.
func (s *EmailService) ConfirmedAt(ctx context.Context, userID uint64) (*time.Time, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	addr, err := s.Addresses.GetByUserAndEmail(ctx, userID, u.Email)
	if err != nil {
		return nil, err
	}
	return addr.ConfirmedAt, nil
}

// GetConfirmationKey returns the current confirmation key for the given
// email, defaulting to the primary when email is empty.
func (s *EmailService) GetConfirmationKey(ctx context.Context, userID uint64, email string) (string, error) {
	if email == "" {
		var err error
		if email, err = s.GetPrimaryEmail(ctx, userID); err != nil {
			return "", err
		}
	}
	addr, err := s.Addresses.GetByUserAndEmail(ctx, userID, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", err
	}
	return addr.Key, nil
}

// GetConfirmedEmails lists the user's confirmed addresses. Order is
// not significant.
func (s *EmailService) GetConfirmedEmails(ctx context.Context, userID uint64) ([]string, error) {
	return s.listEmails(ctx, userID, true)
}

// GetUnconfirmedEmails lists the user's addresses that have not been
// confirmed. Order is not significant.
func (s *EmailService) GetUnconfirmedEmails(ctx context.Context, userID uint64) ([]string, error) {
	return s.listEmails(ctx, userID, false)
}

func (s *EmailService) listEmails(ctx context.Context, userID uint64, confirmed bool) ([]string, error) {
	addrs, err := s.Addresses.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, a := range addrs {
		if a.IsConfirmed() == confirmed {
			out = append(out, a.Email)
		}
	}
	return out, nil
}

// ConfirmEmail attempts to confirm one of the user's addresses with the
// given key and returns the email that was confirmed. An EmailConfirmed
// event is published only on the actual unconfirmed-to-confirmed
// transition; repeating the call with the same unexpired key is an
// idempotent no-op.
func (s *EmailService) ConfirmEmail(ctx context.Context, userID uint64, key string) (string, error) {
	addr, transitioned, err := s.Addresses.ConfirmByKey(ctx, key, userID)
	if err != nil {
		return "", err
	}
	if transitioned {
		s.publish(ctx, queue.EmailConfirmedEvent{
			UserID:      addr.UserID,
			Email:       addr.Email,
			ConfirmedAt: addr.ConfirmedAt.UTC().Format(time.RFC3339),
		})
	}
	return addr.Email, nil
}

// AddConfirmedEmail adds an address that is confirmed from the start
// and returns its key. A duplicate fails loudly with
// repository.ErrDuplicateAddress; it is intentionally not ignored.
func (s *EmailService) AddConfirmedEmail(ctx context.Context, userID uint64, email string) (string, error) {
	email, err := validateEmail(email)
	if err != nil {
		return "", err
	}
	addr, err := s.Addresses.CreateConfirmed(ctx, userID, email)
	if err != nil {
		return "", err
	}
	return addr.Key, nil
}

// AddUnconfirmedEmail adds an unconfirmed address and returns its
// confirmation key. Publishes UnconfirmedEmailCreated. Duplicates fail
// loudly, same as AddConfirmedEmail.
func (s *EmailService) AddUnconfirmedEmail(ctx context.Context, userID uint64, email string, keyLength int) (string, error) {
	email, err := validateEmail(email)
	if err != nil {
		return "", err
	}
	if keyLength <= 0 {
		keyLength = s.DefaultKeyLength
	}
	addr, err := s.Addresses.CreateUnconfirmed(ctx, userID, email, keyLength)
	if err != nil {
		return "", err
	}
	s.publish(ctx, queue.UnconfirmedEmailCreatedEvent{UserID: userID, Email: email})
	return addr.Key, nil
}

// AddEmailIfNotExists is the upsert-flavored add. If the address exists
// and is confirmed nothing happens and an empty key is returned. If it
// exists unconfirmed the confirmation is always reset, even when the
// current key has not expired, and the new key is returned. If it does
// not exist it is created unconfirmed and its key returned.
func (s *EmailService) AddEmailIfNotExists(ctx context.Context, userID uint64, email string) (string, error) {
	email, err := validateEmail(email)
	if err != nil {
		return "", err
	}
	addr, err := s.Addresses.GetByUserAndEmail(ctx, userID, email)
	if err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			return s.AddUnconfirmedEmail(ctx, userID, email, 0)
		}
		return "", err
	}
	if addr.IsConfirmed() {
		return "", nil
	}
	return s.Addresses.ResetConfirmation(ctx, addr.ID)
}

// ResetEmailConfirmation regenerates the key for an existing address,
// restarts its expiration clock and clears any previous confirmation.
// Returns the new key.
func (s *EmailService) ResetEmailConfirmation(ctx context.Context, userID uint64, email string) (string, error) {
	addr, err := s.Addresses.GetByUserAndEmail(ctx, userID, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", err
	}
	return s.Addresses.ResetConfirmation(ctx, addr.ID)
}

// RemoveEmail deletes an address. The record backing the current
// primary email is protected and yields ErrEmailIsPrimary. No event is
// emitted on removal.
func (s *EmailService) RemoveEmail(ctx context.Context, userID uint64, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if email == u.Email {
		return ErrEmailIsPrimary
	}
	return s.Addresses.Delete(ctx, userID, email)
}
