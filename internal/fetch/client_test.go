package fetch

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 10 * time.Millisecond}
}

func TestRequestSuccessAndUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "archoctopus-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "https://ref/", r.Header.Get("Referer"))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c, err := New(Options{UserAgent: "archoctopus-test", Policy: testPolicy(), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	body, resp, err := c.Fetch(context.Background(), server.URL, http.Header{"Referer": {"https://ref/"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestRequestStatusError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	c, _ := New(Options{Policy: testPolicy()})
	_, err := c.Request(context.Background(), http.MethodGet, server.URL, nil, nil)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), hits.Load(), "status errors are not retried")

	resp, err := c.Get(context.Background(), server.URL, nil)
	require.NoError(t, err, "Get leaves status handling to the caller")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTimeoutsAreRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	c, _ := New(Options{Timeout: 30 * time.Millisecond, Policy: testPolicy(), Logger: zaptest.NewLogger(t)})
	_, err := c.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, int32(3), hits.Load())
}

func TestTimeoutThenSuccess(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			time.Sleep(100 * time.Millisecond)
			return
		}
		w.Write([]byte("second"))
	}))
	defer server.Close()

	c, _ := New(Options{Timeout: 30 * time.Millisecond, Policy: testPolicy()})
	body, _, err := c.Fetch(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", string(body))
}

// trickle writes body in n flushed chunks, pause apart.
func trickle(w http.ResponseWriter, r *http.Request, body []byte, n int, pause time.Duration) {
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	size := (len(body) + n - 1) / n
	for start := 0; start < len(body); start += size {
		end := min(start+size, len(body))
		w.Write(body[start:end])
		w.(http.Flusher).Flush()
		select {
		case <-time.After(pause):
		case <-r.Context().Done():
			return
		}
	}
}

func TestSlowSteadyBodyIsNotCutOff(t *testing.T) {
	body := bytes.Repeat([]byte("archoctopus"), 100)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		trickle(w, r, body, 10, 40*time.Millisecond)
	}))
	defer server.Close()

	// The whole transfer takes several times the timeout; no single read does.
	c, _ := New(Options{Timeout: 150 * time.Millisecond, Policy: testPolicy(), Logger: zaptest.NewLogger(t)})
	got, _, err := c.Fetch(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.Equal(t, int32(1), hits.Load())
}

func TestStalledBodyIsRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	c, _ := New(Options{Timeout: 50 * time.Millisecond, Policy: testPolicy()})
	_, _, err := c.Fetch(context.Background(), server.URL, nil)
	require.Error(t, err)
	var stall *StallError
	require.ErrorAs(t, err, &stall)
	assert.Equal(t, "reading body", stall.Phase)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, int32(3), hits.Load())
}

func TestProxyFailureIsNotRetried(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	proxyAddr := ln.Addr().String()
	ln.Close()

	c, err := New(Options{Proxy: "http://" + proxyAddr, Policy: testPolicy()})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Get(context.Background(), "http://example.invalid/", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProxy), "got %v", err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestInvalidProxy(t *testing.T) {
	_, err := New(Options{Proxy: "://bad"})
	assert.Error(t, err)
}

func TestCookiesPersistAcrossRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			return
		}
		c, err := r.Cookie("session")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(c.Value))
	}))
	defer server.Close()

	c, _ := New(Options{Policy: testPolicy()})
	_, _, err := c.Fetch(context.Background(), server.URL+"/login", nil)
	require.NoError(t, err)
	body, _, err := c.Fetch(context.Background(), server.URL+"/private", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(body))
}
