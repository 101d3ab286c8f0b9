package ipfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFetcher(t *testing.T, handler http.Handler) (*Fetcher, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f, err := NewFetcher(Config{
		Gateway:   srv.URL,
		Timeout:   5 * time.Second,
		CacheSize: 3,
	}, zap.NewNop())
	require.NoError(t, err)
	return f, srv
}

func TestFetcher_Distribution(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/QmTest", r.URL.Path)
		w.Write([]byte(`{"operators":{"42":{"validators":{"1":{"strikes":2},"9":{"strikes":0}}}}}`))
	}))

	doc, err := f.Distribution(context.Background(), "QmTest")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, doc.OperatorIDs())
	assert.Equal(t, []string{"1"}, doc.StrikedValidators("42"))
	assert.Empty(t, doc.StrikedValidators("777"))
}

func TestFetcher_CachesPerCID(t *testing.T) {
	var fetches atomic.Int64
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte(`{"operators":{}}`))
	}))

	_, err := f.Distribution(context.Background(), "QmA")
	require.NoError(t, err)
	_, err = f.Distribution(context.Background(), "QmA")
	require.NoError(t, err)
	assert.Equal(t, int64(1), fetches.Load(), "second call must be served from cache")

	_, err = f.Distribution(context.Background(), "QmB")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetches.Load())
}

func TestFetcher_NotFound(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := f.Distribution(context.Background(), "QmMissing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetcher_ServerError(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := f.Distribution(context.Background(), "QmBroken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFetcher_ErrorsAreNotCached(t *testing.T) {
	var fetches atomic.Int64
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"operators":{}}`))
	}))

	_, err := f.Distribution(context.Background(), "QmFlaky")
	require.Error(t, err)

	_, err = f.Distribution(context.Background(), "QmFlaky")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetches.Load())
}

func TestDecodeDistribution_ListMerge(t *testing.T) {
	doc, err := decodeDistribution([]byte(`[
		{"operators":{"42":{"validators":{"1":{"strikes":2}}}}},
		{"operators":{"42":{"validators":{"7":{"strikes":1}}},"777":{"validators":{"9":{"strikes":0}}}}}
	]`))
	require.NoError(t, err)

	assert.Equal(t, []string{"42", "777"}, doc.OperatorIDs())
	assert.Equal(t, []string{"1", "7"}, doc.StrikedValidators("42"))
	assert.Empty(t, doc.StrikedValidators("777"))
}

func TestSortIDs(t *testing.T) {
	ids := []string{"b", "10", "2", "a", "1"}
	sortIDs(ids)
	assert.Equal(t, []string{"1", "2", "10", "a", "b"}, ids)
}
