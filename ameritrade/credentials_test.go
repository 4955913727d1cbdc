package ameritrade

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingSession(token string) (*session, *atomic.Int32) {
	s := newSession(Credentials{AccessToken: token})
	var grants atomic.Int32
	s.refresh = func(ctx context.Context) error {
		n := grants.Add(1)
		s.setTokens(fmt.Sprintf("granted-%d", n), "")
		return nil
	}
	return s, &grants
}

func TestSessionRefreshOncePerStaleToken(t *testing.T) {
	s, grants := countingSession("old")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.refreshFrom(context.Background(), "old"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), grants.Load())
	assert.Equal(t, "granted-1", s.accessToken())

	h := http.Header{}
	s.Authorize(h)
	assert.Equal(t, "Bearer granted-1", h.Get("Authorization"))
}

func TestSessionRefreshGrantsForCurrentToken(t *testing.T) {
	s, grants := countingSession("old")

	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, int32(2), grants.Load())
	assert.Equal(t, "granted-2", s.accessToken())
}

func TestSessionRefreshWithoutGrant(t *testing.T) {
	s := newSession(Credentials{AccessToken: "old"})
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrNotAuthenticated)

	h := http.Header{}
	newSession(Credentials{}).Authorize(h)
	assert.Empty(t, h.Get("Authorization"))
}
