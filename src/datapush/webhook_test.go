package datapush

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPusher_Push(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewPusher(srv.URL, 1, time.Millisecond)
	err := p.Push(context.Background(), map[string]interface{}{"rows": 3, "dataset": "alabama_NO2"})
	require.NoError(t, err)
	assert.Equal(t, float64(3), got["rows"])
	assert.Equal(t, "alabama_NO2", got["dataset"])
}

func TestPusher_RetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPusher(srv.URL, 5, time.Millisecond)
	require.NoError(t, p.Push(context.Background(), struct{}{}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPusher_GivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewPusher(srv.URL, 2, time.Millisecond)
	err := p.Push(context.Background(), struct{}{})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPusher_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPusher(srv.URL, 10, time.Hour)
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := p.Push(ctx, struct{}{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPusher_Upload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(path, []byte("COUNTY\nMobile\n"), 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "report.csv", header.Filename)
		assert.Equal(t, "COUNTY\nMobile\n", string(data))
	}))
	defer srv.Close()

	require.NoError(t, NewPusher(srv.URL, 1, time.Millisecond).Upload(context.Background(), path))
}
