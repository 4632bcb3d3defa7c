package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/archoctopus/archoctopus-go/internal/api"
	"github.com/archoctopus/archoctopus-go/internal/core"
	"github.com/archoctopus/archoctopus-go/internal/testutil"
)

// setupTestServer assembles a full application over an in-memory database.
func setupTestServer(t *testing.T) (*api.Server, *core.App) {
	t.Helper()
	app, err := core.Assemble(testutil.TestConfig(t), testutil.SetupTestDB(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.Close(ctx)
	})
	return api.NewServer(app), app
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// waitIdle blocks until no task is running and pending writes are stored.
func waitIdle(t *testing.T, app *core.App, id int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := app.Tasks().Wait(ctx, id)
	require.NoError(t, err)
}
