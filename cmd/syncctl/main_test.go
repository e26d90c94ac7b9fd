package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/offline-sync/internal/auth"
	"github.com/baharkarakas/offline-sync/internal/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"syncctl"}, args...))
	return out.String(), err
}

func TestSignCommand(t *testing.T) {
	tests := []struct {
		name   string
		raw    bool
		secret func() []byte
	}{
		{
			name: "derived festival key",
			secret: func() []byte {
				s, err := auth.NewKeyRing([]byte("master")).Secret("fest")
				require.NoError(t, err)
				return s
			},
		},
		{
			name:   "raw key",
			raw:    true,
			secret: func() []byte { return []byte("master") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"sign", "--secret", "master", "--festival", "fest",
				"--local-id", "tx-1", "--wallet", "w-1", "--amount", "250", "--type", "topup",
				"--timestamp", "2024-07-01T12:00:00Z"}
			if tt.raw {
				args = append(args, "--raw")
			}
			out, err := run(t, args...)
			require.NoError(t, err)

			var tx models.OfflineTransaction
			require.NoError(t, json.Unmarshal([]byte(out), &tx))
			assert.Equal(t, models.OfflineTopUp, tx.Type)
			assert.Equal(t, time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC), tx.Timestamp.UTC())
			assert.True(t, auth.Verify(tx, tt.secret()))
		})
	}
}

func TestSignCommand_Rejects(t *testing.T) {
	base := []string{"sign", "--secret", "s", "--festival", "f", "--local-id", "l", "--wallet", "w"}

	_, err := run(t, append(base, "--amount", "1", "--type", "gift")...)
	assert.ErrorContains(t, err, "unknown transaction type")

	_, err = run(t, append(base, "--amount", "0")...)
	assert.ErrorContains(t, err, "amount must be positive")

	_, err = run(t, "sign", "--festival", "f")
	assert.Error(t, err)
}

func TestBatchCommands(t *testing.T) {
	var gotAuth, gotPath, gotQuery, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		switch {
		case r.URL.Path == "/sync/batch/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"batch not found","code":"not_found"}`))
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusMultiStatus)
			_, _ = w.Write([]byte(`{"batchId":"b-1","status":"PARTIAL"}`))
		default:
			_, _ = w.Write([]byte(`{"id":"b-1","status":"COMPLETED"}`))
		}
	}))
	defer srv.Close()

	out, err := run(t, "batch", "--server", srv.URL, "--token", "dev-pos-1", "get", "b-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer dev-pos-1", gotAuth)
	assert.Equal(t, "/sync/batch/b-1", gotPath)
	assert.Contains(t, out, `"status": "COMPLETED"`)

	_, err = run(t, "batch", "--server", srv.URL, "pending", "--device", "pos 1")
	require.NoError(t, err)
	assert.Equal(t, "/sync/pending", gotPath)
	assert.Equal(t, "device_id=pos+1", gotQuery)
	assert.Empty(t, gotAuth)

	file := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"deviceId":"pos-1"}`), 0o600))
	out, err = run(t, "batch", "--server", srv.URL, "submit", file)
	require.NoError(t, err, "207 is not an error")
	assert.Equal(t, `{"deviceId":"pos-1"}`, gotBody)
	assert.Contains(t, out, `"status": "PARTIAL"`)

	_, err = run(t, "batch", "--server", srv.URL, "get", "missing")
	assert.ErrorContains(t, err, "404 not_found: batch not found")

	_, err = run(t, "batch", "--server", srv.URL, "get")
	assert.ErrorContains(t, err, "batch id is required")
}
