package providercache

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"
)

// testProvider spins up an httptest server serving discovery + JWKS
// documents, counting how many times each endpoint was hit.
type testProvider struct {
	srv           *httptest.Server
	discoveryHits int32
	jwksHits      int32
	kid           string
}

func newTestProvider(t *testing.T) *testProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tp := &testProvider{kid: "k1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tp.discoveryHits, 1)
		json.NewEncoder(w).Encode(Metadata{
			Issuer:  tp.srv.URL,
			JWKSURI: tp.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tp.jwksHits, 1)
		json.NewEncoder(w).Encode(jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{
				{Key: &key.PublicKey, KeyID: tp.kid, Algorithm: "RS256", Use: "sig"},
			},
		})
	})
	tp.srv = httptest.NewServer(mux)
	return tp
}

func TestResolveFetchesAndCaches(t *testing.T) {
	tp := newTestProvider(t)
	defer tp.srv.Close()
	c := New()

	entry, err := c.Resolve(context.Background(), tp.srv.URL)
	require.NoError(t, err)
	require.Equal(t, tp.srv.URL, entry.Metadata.Issuer)
	require.Len(t, entry.JWKS.Keys, 1)

	_, err = c.Resolve(context.Background(), tp.srv.URL)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&tp.discoveryHits))
	require.EqualValues(t, 1, atomic.LoadInt32(&tp.jwksHits))
}

func TestResolveSingleFlight(t *testing.T) {
	tp := newTestProvider(t)
	defer tp.srv.Close()
	c := New()

	const n = 20
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := c.Resolve(context.Background(), tp.srv.URL)
			results <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-results)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&tp.discoveryHits))
	require.EqualValues(t, 1, atomic.LoadInt32(&tp.jwksHits))
}

func TestRotateForcesRefetchAndDebounces(t *testing.T) {
	tp := newTestProvider(t)
	defer tp.srv.Close()
	c := New()

	_, err := c.Resolve(context.Background(), tp.srv.URL)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&tp.jwksHits))

	_, err = c.Rotate(context.Background(), tp.srv.URL)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&tp.jwksHits))
	require.EqualValues(t, 1, atomic.LoadInt32(&tp.discoveryHits), "rotate must reuse cached discovery metadata")

	// Immediate second rotate should be debounced.
	_, err = c.Rotate(context.Background(), tp.srv.URL)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&tp.jwksHits), "rotation within the debounce window must not refetch")
}

func TestRotateAtomicSwapDoesNotMutateOldSnapshot(t *testing.T) {
	tp := newTestProvider(t)
	defer tp.srv.Close()
	c := New()

	old, err := c.Resolve(context.Background(), tp.srv.URL)
	require.NoError(t, err)
	oldKid := old.JWKS.Keys[0].KeyID

	tp.kid = "k2"
	fresh, err := c.Rotate(context.Background(), tp.srv.URL)
	require.NoError(t, err)

	require.Equal(t, "k1", oldKid)
	require.Equal(t, "k2", fresh.JWKS.Keys[0].KeyID)
	require.Equal(t, "k1", old.JWKS.Keys[0].KeyID, "previously obtained snapshot must not be mutated by rotation")
}

func TestResolveMissingJWKSURI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Metadata{Issuer: "https://example.test"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	_, err := c.Resolve(context.Background(), srv.URL)
	require.Error(t, err)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	require.Equal(t, ErrKindMissingJWKSURI, re.Kind)
}

func TestResolveNon2xxDiscovery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New()
	_, err := c.Resolve(context.Background(), srv.URL)
	require.Error(t, err)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	require.Equal(t, ErrKindStatus, re.Kind)
}

func TestSerializeRestoreRoundTrip(t *testing.T) {
	tp := newTestProvider(t)
	defer tp.srv.Close()

	c1 := New()
	_, err := c1.Resolve(context.Background(), tp.srv.URL)
	require.NoError(t, err)
	snapshot := c1.Serialize()
	require.Contains(t, snapshot, tp.srv.URL)

	tp.srv.Close() // no network I/O should be needed from here on

	c2 := New()
	require.NoError(t, c2.Restore(snapshot))

	entry, err := c2.Resolve(context.Background(), tp.srv.URL)
	require.NoError(t, err)
	require.Len(t, entry.JWKS.Keys, 1)
	require.Equal(t, "k1", entry.JWKS.Keys[0].KeyID)
}

func TestDifferentIssuersResolveIndependently(t *testing.T) {
	tp1 := newTestProvider(t)
	defer tp1.srv.Close()
	tp2 := newTestProvider(t)
	defer tp2.srv.Close()

	c := New()
	e1, err := c.Resolve(context.Background(), tp1.srv.URL)
	require.NoError(t, err)
	e2, err := c.Resolve(context.Background(), tp2.srv.URL)
	require.NoError(t, err)
	require.NotEqual(t, e1.Metadata.Issuer, e2.Metadata.Issuer)
}
