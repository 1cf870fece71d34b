package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/email-confirmation/internal/repository"
)

type fakeAdder struct {
	calls []UserCreatedMessage
	err   error
}

func (f *fakeAdder) AddUnconfirmedEmail(_ context.Context, userID uint64, email string, _ int) (string, error) {
	f.calls = append(f.calls, UserCreatedMessage{UserID: userID, Email: email})
	if f.err != nil {
		return "", f.err
	}
	return "newkey123456", nil
}

func TestHandleUserCreated(t *testing.T) {
	adder := &fakeAdder{}

	err := HandleUserCreated(context.Background(), adder, []byte(`{"user_id":7,"email":"a@x.com"}`))
	require.NoError(t, err)
	require.Len(t, adder.calls, 1)
	assert.Equal(t, UserCreatedMessage{UserID: 7, Email: "a@x.com"}, adder.calls[0])
}

func TestHandleUserCreatedDuplicateIsAcked(t *testing.T) {
	// A redelivered message finds the address already provisioned; the
	// handler must report success so the delivery is acked.
	adder := &fakeAdder{err: repository.ErrDuplicateAddress}

	err := HandleUserCreated(context.Background(), adder, []byte(`{"user_id":7,"email":"a@x.com"}`))
	assert.NoError(t, err)
}

func TestHandleUserCreatedBadPayload(t *testing.T) {
	adder := &fakeAdder{}

	assert.Error(t, HandleUserCreated(context.Background(), adder, []byte(`{not json`)))
	assert.Error(t, HandleUserCreated(context.Background(), adder, []byte(`{"user_id":0,"email":""}`)))
	assert.Empty(t, adder.calls)
}
