package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-nozomu/gacha-app/internal/models"
)

func sampleTable() models.Table {
	return models.Table{
		Header:  []string{"name", "rank"},
		Records: [][]string{{"大当たり", "1"}},
	}
}

func TestMemory_ConditionalWrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, v1, err := m.Read(ctx, CatalogTable)
	require.NoError(t, err)

	require.NoError(t, m.Write(ctx, CatalogTable, sampleTable(), v1))

	// The stale version must lose.
	err = m.Write(ctx, CatalogTable, models.Table{}, v1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// A fresh read wins again.
	table, v2, err := m.Read(ctx, CatalogTable)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
	assert.Equal(t, sampleTable(), table)

	require.NoError(t, m.Write(ctx, CatalogTable, models.Table{Header: []string{"name"}}, v2))
}

func TestMemory_UnconditionalWrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, LedgerTable, sampleTable(), v0(t, m, LedgerTable)))
	// version "" replaces regardless of the current revision
	require.NoError(t, m.Write(ctx, LedgerTable, models.Table{}, ""))

	table, _, err := m.Read(ctx, LedgerTable)
	require.NoError(t, err)
	assert.Empty(t, table.Records)
}

func v0(t *testing.T, m *Memory, table string) string {
	t.Helper()
	_, v, err := m.Read(context.Background(), table)
	require.NoError(t, err)
	return v
}

func TestMemory_ReadReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Write(ctx, CatalogTable, sampleTable(), ""))

	table, _, err := m.Read(ctx, CatalogTable)
	require.NoError(t, err)
	table.Records[0][0] = "改ざん"

	again, _, err := m.Read(ctx, CatalogTable)
	require.NoError(t, err)
	assert.Equal(t, "大当たり", again.Records[0][0])
}

func TestMemory_ConcurrentWritersSerialize(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, v, err := m.Read(ctx, CatalogTable)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := 0; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Write(ctx, CatalogTable, sampleTable(), v)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrVersionConflict)
		}
	}
	assert.Equal(t, 1, wins, "only one writer may commit against the same version")
}

// sheetFixture is a minimal fake of the spreadsheet web API, versioned
// with ETags the way the real endpoint is.
type sheetFixture struct {
	mu      sync.Mutex
	etag    int
	payload models.Table
}

func (f *sheetFixture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("ETag", etag(f.etag))
			json.NewEncoder(w).Encode(f.payload)
		case http.MethodPut:
			if match := r.Header.Get("If-Match"); match != "" && match != etag(f.etag) {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			json.NewDecoder(r.Body).Decode(&f.payload)
			f.etag++
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func etag(n int) string {
	return `"v` + string(rune('0'+n)) + `"`
}

func TestSheetClient_ConditionalWrite(t *testing.T) {
	fixture := &sheetFixture{payload: sampleTable()}
	server := httptest.NewServer(fixture.handler())
	defer server.Close()

	client := NewSheetClient(server.URL)
	ctx := context.Background()

	table, version, err := client.Read(ctx, CatalogTable)
	require.NoError(t, err)
	assert.Equal(t, sampleTable(), table)

	require.NoError(t, client.Write(ctx, CatalogTable, models.Table{Header: []string{"name"}}, version))

	// The old ETag is now stale.
	err = client.Write(ctx, CatalogTable, models.Table{}, version)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// Unconditional write skips If-Match entirely.
	require.NoError(t, client.Write(ctx, CatalogTable, sampleTable(), ""))
}

func TestSheetClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewSheetClient(server.URL)

	_, _, err := client.Read(context.Background(), CatalogTable)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = client.Write(context.Background(), CatalogTable, models.Table{}, "")
	assert.ErrorIs(t, err, ErrUnavailable)
}
