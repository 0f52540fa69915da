package importer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingmon/internal/storage/models"
	pkgerrors "pingmon/pkg/errors"
)

func fastFetcher() *Fetcher {
	return NewFetcher(FetcherConfig{
		UserAgent:  "pingmon-test",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		MaxBytes:   1 << 10,
	})
}

func TestFetcher_Fetch(t *testing.T) {
	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		fmt.Fprint(w, "address\n10.0.0.1\n")
	}))
	defer srv.Close()

	body, err := fastFetcher().Fetch(context.Background(), srv.URL+"/devices.csv")
	require.NoError(t, err)
	assert.Equal(t, "address\n10.0.0.1\n", string(body))
	assert.Equal(t, "pingmon-test", <-agents)
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	body, err := fastFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcher_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := fastFetcher().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrImportFetch))

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetcher_RejectsLargeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2<<10))
	}))
	defer srv.Close()

	_, err := fastFetcher().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "larger than")
}

func TestFetcher_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Timeout: time.Second, MaxRetries: 5, RetryDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCheckPath(t *testing.T) {
	assert.NoError(t, CheckPath("devices.xlsx"))
	assert.NoError(t, CheckPath("/srv/devices.CSV"))
	assert.NoError(t, CheckPath("https://inventory.example.com/export/devices.csv?token=x"))
	assert.ErrorIs(t, CheckPath("devices.ods"), pkgerrors.ErrImportUnsupported)
	assert.ErrorIs(t, CheckPath("https://inventory.example.com/export"), pkgerrors.ErrImportUnsupported)

	assert.True(t, IsRemote("HTTP://host/devices.csv"))
	assert.False(t, IsRemote("/tmp/http/devices.csv"))
}

func TestFileSource_RemoteCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Name,IP,Location\nCore,10.0.0.1,DC\n,,\nEdge,10.0.0.2,Branch\n")
	}))
	defer srv.Close()

	src, err := NewFileSource(srv.URL+"/export/devices.csv", "", nil, WithFetcher(fastFetcher()))
	require.NoError(t, err)
	assert.True(t, src.Exists())

	records, warnings, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, records, 2)
	assert.Equal(t, "10.0.0.1", records[0].Address)
	assert.Equal(t, "Core", records[0].DisplayName)
	assert.Equal(t, "Branch", records[1].Location)
}

func TestFileSource_RemoteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.xlsx")
	writeWorkbook(t, path, "Sheet1", [][]string{
		{"address", "name"},
		{"10.0.0.9", "Printer"},
	})
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Timeout: 2 * time.Second, RetryDelay: time.Millisecond})
	src, err := NewFileSource(srv.URL+"/devices.xlsx", "", nil, WithFetcher(f))
	require.NoError(t, err)

	records, _, err := src.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Printer", records[0].DisplayName)
}

func TestFileSource_RemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	src, err := NewFileSource(srv.URL+"/devices.csv", "", nil, WithFetcher(fastFetcher()))
	require.NoError(t, err)

	_, _, err = src.Read(context.Background())
	var importErr *pkgerrors.ImportError
	require.True(t, errors.As(err, &importErr))
	assert.ErrorIs(t, err, pkgerrors.ErrImportFetch)
}

func TestFileSource_RemoteReadOnly(t *testing.T) {
	src, err := NewFileSource("https://inventory.example.com/devices.csv", "", nil)
	require.NoError(t, err)

	err = src.Update(context.Background(), "10.0.0.1", models.Record{Address: "10.0.0.2"})
	assert.ErrorIs(t, err, pkgerrors.ErrImportReadOnly)
}
