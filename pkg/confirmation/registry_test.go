package confirmation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueThenConsume_Succeeds(t *testing.T) {
	r := New([]byte("test-signing-key"), nil)
	conf, err := r.Issue(context.Background(), "req-1", "alice", [32]byte{1, 2, 3})
	require.NoError(t, err)
	assert.NotEmpty(t, conf.Signature)
	require.NoError(t, r.VerifySignature(conf.Signature))

	consumed, err := r.Consume(context.Background(), conf.ConfirmationID)
	require.NoError(t, err)
	assert.Equal(t, conf.ConfirmationID, consumed.ConfirmationID)
	assert.True(t, r.IsUsed(conf.ConfirmationID))
}

func TestConsume_SecondCallFailsWithTokenAlreadyUsed(t *testing.T) {
	r := New([]byte("key"), nil)
	conf, err := r.Issue(context.Background(), "req-1", "alice", [32]byte{})
	require.NoError(t, err)

	_, err = r.Consume(context.Background(), conf.ConfirmationID)
	require.NoError(t, err)

	_, err = r.Consume(context.Background(), conf.ConfirmationID)
	var used *TokenAlreadyUsed
	require.ErrorAs(t, err, &used)
}

func TestConsume_ExpiredTokenFails(t *testing.T) {
	now := time.Now()
	r := New([]byte("key"), nil).WithTTL(time.Minute)
	r.WithClock(func() time.Time { return now })

	conf, err := r.Issue(context.Background(), "req-1", "alice", [32]byte{})
	require.NoError(t, err)

	r.WithClock(func() time.Time { return now.Add(2 * time.Minute) })
	_, err = r.Consume(context.Background(), conf.ConfirmationID)
	var expired *TokenExpired
	require.ErrorAs(t, err, &expired)
}

func TestConsume_UnknownConfirmationID(t *testing.T) {
	r := New([]byte("key"), nil)
	_, err := r.Consume(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownConfirmation)
}

func TestConsume_ExactlyOneWinnerUnderConcurrency(t *testing.T) {
	r := New([]byte("key"), nil)
	conf, err := r.Issue(context.Background(), "req-1", "alice", [32]byte{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var successes int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Consume(context.Background(), conf.ConfirmationID); err == nil {
				atomic.AddInt64(&successes, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), successes)
}
