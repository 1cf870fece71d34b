package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/email-confirmation/internal/model"
	"github.com/iliyamo/email-confirmation/internal/utils"
)

// EmailAddressRepo owns EmailAddress records in the `email_addresses`
// table.  Uniqueness of (user_id, email) pairs and of confirmation keys
// is enforced by unique indexes; the repository surfaces constraint
// violations as ErrDuplicateAddress instead of taking its own locks.
// All timestamps are stored in UTC.
type EmailAddressRepo struct {
	DB *sql.DB
	// Period is the confirmation key lifetime measured from SetAt.
	// Zero means keys never expire.
	Period time.Duration
}

// NewEmailAddressRepo returns a repo bound to the given database with
// the given key expiration period.
func NewEmailAddressRepo(db *sql.DB, period time.Duration) *EmailAddressRepo {
	return &EmailAddressRepo{DB: db, Period: period}
}

const addressColumns = "id, user_id, email, confirmation_key, set_at, confirmed_at, created_at"

// scanAddress reads one email_addresses row from a row scanner.
func scanAddress(row *sql.Row) (model.EmailAddress, error) {
	var (
		a         model.EmailAddress
		confirmed sql.NullTime
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Email, &a.Key, &a.SetAt, &confirmed, &a.CreatedAt)
	if err != nil {
		return model.EmailAddress{}, err
	}
	if confirmed.Valid {
		t := confirmed.Time
		a.ConfirmedAt = &t
	}
	return a, nil
}

// isDuplicate reports whether err is a MySQL duplicate-entry error (1062).
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}

// CreateConfirmed inserts a record that is confirmed from the start:
// confirmed_at = set_at = now with a freshly generated key. Returns
// ErrDuplicateAddress if (user_id, email) already exists.
func (r *EmailAddressRepo) CreateConfirmed(ctx context.Context, userID uint64, email string) (model.EmailAddress, error) {
	key, err := utils.GenerateKey(0)
	if err != nil {
		return model.EmailAddress{}, err
	}
	now := time.Now().UTC()
	const q = `INSERT INTO email_addresses (user_id, email, confirmation_key, set_at, confirmed_at) VALUES (?, ?, ?, ?, ?)`
	res, err := r.DB.ExecContext(ctx, q, userID, email, key, now, now)
	if err != nil {
		if isDuplicate(err) {
			return model.EmailAddress{}, ErrDuplicateAddress
		}
		return model.EmailAddress{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.EmailAddress{}, err
	}
	confirmed := now
	return model.EmailAddress{
		ID: uint64(id), UserID: userID, Email: email,
		Key: key, SetAt: now, ConfirmedAt: &confirmed, CreatedAt: now,
	}, nil
}

// CreateUnconfirmed inserts a record in the unconfirmed state with a
// freshly generated key and set_at = now.  keyLength selects the key
// size; zero picks the generator default and values above the column
// width are clamped.  Returns ErrDuplicateAddress on conflict.
func (r *EmailAddressRepo) CreateUnconfirmed(ctx context.Context, userID uint64, email string, keyLength int) (model.EmailAddress, error) {
	key, err := utils.GenerateKey(keyLength)
	if err != nil {
		return model.EmailAddress{}, err
	}
	now := time.Now().UTC()
	const q = `INSERT INTO email_addresses (user_id, email, confirmation_key, set_at) VALUES (?, ?, ?, ?)`
	res, err := r.DB.ExecContext(ctx, q, userID, email, key, now)
	if err != nil {
		if isDuplicate(err) {
			return model.EmailAddress{}, ErrDuplicateAddress
		}
		return model.EmailAddress{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.EmailAddress{}, err
	}
	return model.EmailAddress{
		ID: uint64(id), UserID: userID, Email: email,
		Key: key, SetAt: now, CreatedAt: now,
	}, nil
}

// GetByUserAndEmail fetches a single address by its (user, email) pair.
// Returns ErrAddressNotFound when no such record exists.
func (r *EmailAddressRepo) GetByUserAndEmail(ctx context.Context, userID uint64, email string) (model.EmailAddress, error) {
	const q = `SELECT ` + addressColumns + ` FROM email_addresses WHERE user_id=? AND email=? LIMIT 1`
	a, err := scanAddress(r.DB.QueryRowContext(ctx, q, userID, email))
	if err == sql.ErrNoRows {
		return model.EmailAddress{}, ErrAddressNotFound
	}
	return a, err
}

// ListByUser returns every address associated with the user, in no
// significant order.
func (r *EmailAddressRepo) ListByUser(ctx context.Context, userID uint64) ([]model.EmailAddress, error) {
	const q = `SELECT ` + addressColumns + ` FROM email_addresses WHERE user_id=?`
	rows, err := r.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EmailAddress
	for rows.Next() {
		var (
			a         model.EmailAddress
			confirmed sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Email, &a.Key, &a.SetAt, &confirmed, &a.CreatedAt); err != nil {
			return nil, err
		}
		if confirmed.Valid {
			t := confirmed.Time
			a.ConfirmedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ConfirmByKey looks up a record by confirmation key, optionally scoped
// to a user (userID of zero disables the scope).  It returns
// ErrAddressNotFound when no record matches and ErrConfirmationExpired
// when the key's expiration window has elapsed; an expired key never
// mutates the record.  When the address is not yet confirmed the
// repository sets confirmed_at = now in a single-column update and
// reports transitioned = true so the caller can emit exactly one event.
// Confirming an already-confirmed, unexpired key is an idempotent no-op
// that returns the record unchanged with transitioned = false.
func (r *EmailAddressRepo) ConfirmByKey(ctx context.Context, key string, userID uint64) (model.EmailAddress, bool, error) {
	q := `SELECT ` + addressColumns + ` FROM email_addresses WHERE confirmation_key=?`
	args := []interface{}{key}
	if userID != 0 {
		q += ` AND user_id=?`
		args = append(args, userID)
	}
	q += ` LIMIT 1`

	a, err := scanAddress(r.DB.QueryRowContext(ctx, q, args...))
	if err == sql.ErrNoRows {
		return model.EmailAddress{}, false, ErrAddressNotFound
	}
	if err != nil {
		return model.EmailAddress{}, false, err
	}

	now := time.Now().UTC()
	if a.IsKeyExpired(r.Period, now) {
		return model.EmailAddress{}, false, ErrConfirmationExpired
	}
	if a.IsConfirmed() {
		return a, false, nil
	}

	const upd = `UPDATE email_addresses SET confirmed_at=? WHERE id=? AND confirmed_at IS NULL`
	res, err := r.DB.ExecContext(ctx, upd, now, a.ID)
	if err != nil {
		return model.EmailAddress{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.EmailAddress{}, false, err
	}
	if n == 0 {
		// A concurrent confirm won the update; treat this call as the
		// idempotent repeat so only one caller reports the transition.
		return a, false, nil
	}
	a.ConfirmedAt = &now
	return a, true, nil
}

// ResetConfirmation regenerates the confirmation key, resets set_at to
// now and clears confirmed_at in a single update.  The previous key
// becomes permanently invalid.  Returns the new key.
func (r *EmailAddressRepo) ResetConfirmation(ctx context.Context, addressID uint64) (string, error) {
	key, err := utils.GenerateKey(0)
	if err != nil {
		return "", err
	}
	const q = `UPDATE email_addresses SET confirmation_key=?, set_at=?, confirmed_at=NULL WHERE id=?`
	res, err := r.DB.ExecContext(ctx, q, key, time.Now().UTC(), addressID)
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrAddressNotFound
	}
	return key, nil
}

// Delete removes the address bound to (user, email).  Returns
// ErrAddressNotFound when no row was deleted.  Protection of the
// primary address is enforced by the service layer before calling.
func (r *EmailAddressRepo) Delete(ctx context.Context, userID uint64, email string) error {
	const q = `DELETE FROM email_addresses WHERE user_id=? AND email=?`
	res, err := r.DB.ExecContext(ctx, q, userID, email)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAddressNotFound
	}
	return nil
}
