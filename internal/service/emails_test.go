package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/email-confirmation/internal/model"
	"github.com/iliyamo/email-confirmation/internal/queue"
	"github.com/iliyamo/email-confirmation/internal/repository"
	"github.com/iliyamo/email-confirmation/internal/utils"
)

// ----- in-memory fakes -----

type fakeUserStore struct {
	users map[uint64]model.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, errNoUser
	}
	return u, nil
}

func (f *fakeUserStore) UpdatePrimaryEmail(_ context.Context, id uint64, email string) error {
	u := f.users[id]
	u.Email = email
	f.users[id] = u
	return nil
}

var errNoUser = assert.AnError

// fakeAddressStore mimics the MySQL repo including unique-constraint
// enforcement and key expiration so the facade can be exercised without
// a database.
type fakeAddressStore struct {
	nextID uint64
	period time.Duration
	byID   map[uint64]*model.EmailAddress
}

func newFakeAddressStore(period time.Duration) *fakeAddressStore {
	return &fakeAddressStore{period: period, byID: map[uint64]*model.EmailAddress{}}
}

func (f *fakeAddressStore) insert(userID uint64, email string, confirmed bool, keyLength int) (model.EmailAddress, error) {
	for _, a := range f.byID {
		if a.UserID == userID && a.Email == email {
			return model.EmailAddress{}, repository.ErrDuplicateAddress
		}
	}
	key, err := utils.GenerateKey(keyLength)
	if err != nil {
		return model.EmailAddress{}, err
	}
	f.nextID++
	now := time.Now().UTC()
	a := &model.EmailAddress{ID: f.nextID, UserID: userID, Email: email, Key: key, SetAt: now, CreatedAt: now}
	if confirmed {
		t := now
		a.ConfirmedAt = &t
	}
	f.byID[a.ID] = a
	return *a, nil
}

func (f *fakeAddressStore) CreateConfirmed(_ context.Context, userID uint64, email string) (model.EmailAddress, error) {
	return f.insert(userID, email, true, 0)
}

func (f *fakeAddressStore) CreateUnconfirmed(_ context.Context, userID uint64, email string, keyLength int) (model.EmailAddress, error) {
	return f.insert(userID, email, false, keyLength)
}

func (f *fakeAddressStore) GetByUserAndEmail(_ context.Context, userID uint64, email string) (model.EmailAddress, error) {
	for _, a := range f.byID {
		if a.UserID == userID && a.Email == email {
			return *a, nil
		}
	}
	return model.EmailAddress{}, repository.ErrAddressNotFound
}

func (f *fakeAddressStore) ListByUser(_ context.Context, userID uint64) ([]model.EmailAddress, error) {
	var out []model.EmailAddress
	for _, a := range f.byID {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAddressStore) ConfirmByKey(_ context.Context, key string, userID uint64) (model.EmailAddress, bool, error) {
	for _, a := range f.byID {
		if a.Key != key || (userID != 0 && a.UserID != userID) {
			continue
		}
		now := time.Now().UTC()
		if a.IsKeyExpired(f.period, now) {
			return model.EmailAddress{}, false, repository.ErrConfirmationExpired
		}
		if a.IsConfirmed() {
			return *a, false, nil
		}
		a.ConfirmedAt = &now
		return *a, true, nil
	}
	return model.EmailAddress{}, false, repository.ErrAddressNotFound
}

func (f *fakeAddressStore) ResetConfirmation(_ context.Context, addressID uint64) (string, error) {
	a, ok := f.byID[addressID]
	if !ok {
		return "", repository.ErrAddressNotFound
	}
	key, err := utils.GenerateKey(0)
	if err != nil {
		return "", err
	}
	a.Key = key
	a.SetAt = time.Now().UTC()
	a.ConfirmedAt = nil
	return key, nil
}

func (f *fakeAddressStore) Delete(_ context.Context, userID uint64, email string) error {
	for id, a := range f.byID {
		if a.UserID == userID && a.Email == email {
			delete(f.byID, id)
			return nil
		}
	}
	return repository.ErrAddressNotFound
}

// recorder collects published events so tests can assert on exact
// emission counts.
type recorder struct {
	events []queue.Event
}

func (r *recorder) Publish(_ context.Context, ev queue.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ofType(name string) []queue.Event {
	var out []queue.Event
	for _, ev := range r.events {
		if ev.EventType() == name {
			out = append(out, ev)
		}
	}
	return out
}

func newTestService(period time.Duration) (*EmailService, *fakeAddressStore, *recorder) {
	users := &fakeUserStore{users: map[uint64]model.User{
		1: {ID: 1, Email: "primary@x.com"},
		2: {ID: 2, Email: "other@x.com"},
	}}
	addrs := newFakeAddressStore(period)
	rec := &recorder{}
	return NewEmailService(users, addrs, rec), addrs, rec
}

// ----- tests -----

func TestAddUnconfirmedThenConfirm(t *testing.T) {
	svc, _, rec := newTestService(0)
	ctx := context.Background()

	key, err := svc.AddUnconfirmedEmail(ctx, 1, "new@x.com", 0)
	require.NoError(t, err)
	require.NotEmpty(t, key)
	assert.Len(t, rec.ofType("email.unconfirmed_created"), 1)

	email, err := svc.ConfirmEmail(ctx, 1, key)
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", email)
	assert.Len(t, rec.ofType("email.confirmed"), 1)

	unconfirmed, err := svc.GetUnconfirmedEmails(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, unconfirmed)
	confirmed, err := svc.GetConfirmedEmails(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"new@x.com"}, confirmed)
}

func TestDoubleConfirmEmitsOneEvent(t *testing.T) {
	svc, _, rec := newTestService(time.Hour)
	ctx := context.Background()

	key, err := svc.AddUnconfirmedEmail(ctx, 1, "new@x.com", 0)
	require.NoError(t, err)

	_, err = svc.ConfirmEmail(ctx, 1, key)
	require.NoError(t, err)
	_, err = svc.ConfirmEmail(ctx, 1, key)
	require.NoError(t, err)

	assert.Len(t, rec.ofType("email.confirmed"), 1)
}

func TestConfirmExpiredKey(t *testing.T) {
	svc, addrs, rec := newTestService(time.Hour)
	ctx := context.Background()

	key, err := svc.AddUnconfirmedEmail(ctx, 1, "new@x.com", 0)
	require.NoError(t, err)

	// Age the key past the window.
	for _, a := range addrs.byID {
		a.SetAt = a.SetAt.Add(-2 * time.Hour)
	}

	_, err = svc.ConfirmEmail(ctx, 1, key)
	assert.ErrorIs(t, err, repository.ErrConfirmationExpired)
	assert.Empty(t, rec.ofType("email.confirmed"))

	addr, err := addrs.GetByUserAndEmail(ctx, 1, "new@x.com")
	require.NoError(t, err)
	assert.Nil(t, addr.ConfirmedAt)
}

func TestResetInvalidatesOldKey(t *testing.T) {
	svc, _, _ := newTestService(0)
	ctx := context.Background()

	oldKey, err := svc.AddUnconfirmedEmail(ctx, 1, "new@x.com", 0)
	require.NoError(t, err)

	newKey, err := svc.ResetEmailConfirmation(ctx, 1, "new@x.com")
	require.NoError(t, err)
	require.NotEqual(t, oldKey, newKey)

	_, err = svc.ConfirmEmail(ctx, 1, oldKey)
	assert.ErrorIs(t, err, repository.ErrAddressNotFound)

	_, err = svc.ConfirmEmail(ctx, 1, newKey)
	assert.NoError(t, err)
}

func TestResetClearsConfirmation(t *testing.T) {
	svc, addrs, _ := newTestService(0)
	ctx := context.Background()

	key, err := svc.AddUnconfirmedEmail(ctx, 1, "new@x.com", 0)
	require.NoError(t, err)
	_, err = svc.ConfirmEmail(ctx, 1, key)
	require.NoError(t, err)

	_, err = svc.ResetEmailConfirmation(ctx, 1, "new@x.com")
	require.NoError(t, err)

	addr, err := addrs.GetByUserAndEmail(ctx, 1, "new@x.com")
	require.NoError(t, err)
	assert.False(t, addr.IsConfirmed())
}

func TestSetPrimaryRequiresConfirmed(t *testing.T) {
	svc, _, rec := newTestService(0)
	ctx := context.Background()

	_, err := svc.AddUnconfirmedEmail(ctx, 1, "new@x.com", 0)
	require.NoError(t, err)

	err = svc.SetPrimaryEmail(ctx, 1, "new@x.com", true)
	assert.ErrorIs(t, err, ErrEmailNotConfirmed)

	primary, err := svc.GetPrimaryEmail(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "primary@x.com", primary)
	assert.Empty(t, rec.ofType("email.primary_changed"))
}

func TestSetPrimaryOverride(t *testing.T) {
	svc, _, rec := newTestService(0)
	ctx := context.Background()

	// Explicit opt-out of the confirmation requirement.
	err := svc.SetPrimaryEmail(ctx, 1, "anything@x.com", false)
	require.NoError(t, err)

	primary, err := svc.GetPrimaryEmail(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "anything@x.com", primary)
	assert.Len(t, rec.ofType("email.primary_changed"), 1)
}

func TestSetPrimaryToCurrentIsNoOp(t *testing.T) {
	svc, _, rec := newTestService(0)

	err := svc.SetPrimaryEmail(context.Background(), 1, "primary@x.com", true)
	require.NoError(t, err)
	assert.Empty(t, rec.ofType("email.primary_changed"))
}

func TestSetPrimaryAfterConfirm(t *testing.T) {
	svc, _, rec := newTestService(0)
	ctx := context.Background()

	key, err := svc.AddUnconfirmedEmail(ctx, 1, "new@x.com", 0)
	require.NoError(t, err)
	_, err = svc.ConfirmEmail(ctx, 1, key)
	require.NoError(t, err)

	require.NoError(t, svc.SetPrimaryEmail(ctx, 1, "new@x.com", true))

	events := rec.ofType("email.primary_changed")
	require.Len(t, events, 1)
	ev := events[0].(queue.PrimaryEmailChangedEvent)
	assert.Equal(t, "primary@x.com", ev.OldEmail)
	assert.Equal(t, "new@x.com", ev.NewEmail)
}

func TestRemovePrimaryFails(t *testing.T) {
	svc, _, _ := newTestService(0)
	ctx := context.Background()

	_, err := svc.AddConfirmedEmail(ctx, 1, "primary@x.com")
	require.NoError(t, err)

	err = svc.RemoveEmail(ctx, 1, "primary@x.com")
	assert.ErrorIs(t, err, ErrEmailIsPrimary)

	// Record still present.
	confirmed, err := svc.GetConfirmedEmails(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, confirmed, "primary@x.com")
}

func TestRemoveEmail(t *testing.T) {
	svc, _, _ := newTestService(0)
	ctx := context.Background()

	_, err := svc.AddConfirmedEmail(ctx, 1, "extra@x.com")
	require.NoError(t, err)

	require.NoError(t, svc.RemoveEmail(ctx, 1, "extra@x.com"))
	assert.ErrorIs(t, svc.RemoveEmail(ctx, 1, "extra@x.com"), repository.ErrAddressNotFound)
}

func TestAddEmailIfNotExists(t *testing.T) {
	svc, _, _ := newTestService(0)
	ctx := context.Background()

	// First call creates the address.
	first, err := svc.AddEmailIfNotExists(ctx, 1, "b@x.com")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// Second call resets: a different key comes back even though the
	// first one never expired.
	second, err := svc.AddEmailIfNotExists(ctx, 1, "b@x.com")
	require.NoError(t, err)
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)

	// Once confirmed, the call becomes a true no-op.
	_, err = svc.ConfirmEmail(ctx, 1, second)
	require.NoError(t, err)
	third, err := svc.AddEmailIfNotExists(ctx, 1, "b@x.com")
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestDuplicateScopedPerUser(t *testing.T) {
	svc, _, _ := newTestService(0)
	ctx := context.Background()

	_, err := svc.AddUnconfirmedEmail(ctx, 1, "x@x.com", 0)
	require.NoError(t, err)

	_, err = svc.AddUnconfirmedEmail(ctx, 1, "x@x.com", 0)
	assert.ErrorIs(t, err, repository.ErrDuplicateAddress)

	// Same address on a different user is fine.
	_, err = svc.AddUnconfirmedEmail(ctx, 2, "x@x.com", 0)
	assert.NoError(t, err)
}

func TestAddRejectsInvalidEmail(t *testing.T) {
	svc, _, _ := newTestService(0)
	ctx := context.Background()

	for _, bad := range []string{"", "not-an-email", "a b@x.com", "Display Name <a@x.com>"} {
		_, err := svc.AddUnconfirmedEmail(ctx, 1, bad, 0)
		assert.ErrorIsf(t, err, ErrInvalidEmail, "input %q", bad)
	}
}

func TestIsConfirmedWithoutRecord(t *testing.T) {
	svc, _, _ := newTestService(0)

	// Primary email has no address record at all: counts as unconfirmed.
	confirmed, err := svc.IsConfirmed(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, confirmed)
}

func TestGetConfirmationKeyDefaultsToPrimary(t *testing.T) {
	svc, _, _ := newTestService(0)
	ctx := context.Background()

	want, err := svc.AddUnconfirmedEmail(ctx, 1, "primary@x.com", 0)
	require.NoError(t, err)

	got, err := svc.GetConfirmationKey(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = svc.GetConfirmationKey(ctx, 1, "missing@x.com")
	assert.ErrorIs(t, err, repository.ErrAddressNotFound)
}
