package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

func newTestClient(t *testing.T, baseURL string) (*Client, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewClient(baseURL, "owner/repo", "secret", zap.NewNop())
	c.Policy = Policy{MaxAttempts: 3, Delay: 5 * time.Second, Now: clock.Now, Sleep: clock.Sleep}
	return c, clock
}

func TestRequestSuccessSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("X-GitHub-Api-Version"); got != "2022-11-28" {
			t.Errorf("api version = %q", got)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	resp, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	var body struct{ OK bool }
	if err := resp.Decode(&body); err != nil || !body.OK {
		t.Fatalf("decode: %v %+v", err, body)
	}
}

func TestRequestNotFoundIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	resp, err := c.Request(context.Background(), http.MethodGet, "/missing", nil, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !resp.NotFound {
		t.Fatal("expected NotFound response")
	}
	if hits != 1 {
		t.Fatalf("expected 1 request, got %d", hits)
	}
}

func TestRequestRateLimitDoesNotConsumeAttempts(t *testing.T) {
	var hits int32
	reset := time.Unix(1_700_000_000, 0).Add(10 * time.Second).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n <= 3 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, clock := newTestClient(t, srv.URL)
	if _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if hits != 4 {
		t.Fatalf("expected 4 requests, got %d", hits)
	}
	// Erste Wartezeit bis zum Reset. Danach liegt der Reset in der Vergangenheit:
	// einmal ohne Pause, danach zählt es als Versuch mit Delay.
	want := []time.Duration{10 * time.Second, 0, 5 * time.Second}
	if fmt.Sprint(clock.sleeps) != fmt.Sprint(want) {
		t.Fatalf("sleeps = %v, want %v", clock.sleeps, want)
	}
}

func TestRequestRateLimitWithoutResetConsumesAttempts(t *testing.T) {
	for _, reset := range []string{"", "soon"} {
		t.Run("reset="+reset, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.Header().Set("X-RateLimit-Remaining", "0")
				if reset != "" {
					w.Header().Set("X-RateLimit-Reset", reset)
				}
				w.WriteHeader(http.StatusForbidden)
			}))
			defer srv.Close()

			c, _ := newTestClient(t, srv.URL)
			_, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
			if !errors.Is(err, ErrExhaustedRetries) {
				t.Fatalf("expected exhausted retries, got %v", err)
			}
			if hits != 3 {
				t.Fatalf("expected 3 requests, got %d", hits)
			}
		})
	}
}

func TestRequestStaleRateLimitResetIsBounded(t *testing.T) {
	var hits int32
	past := time.Unix(1_700_000_000, 0).Add(-time.Minute).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(past, 10))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, clock := newTestClient(t, srv.URL)
	_, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	var exhausted *ExhaustedRetriesError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 3 {
		t.Fatalf("expected ExhaustedRetriesError after 3 attempts, got %v", err)
	}
	// Eine freie Wiederholung, dann drei gezählte Versuche.
	if hits != 4 {
		t.Fatalf("expected 4 requests, got %d", hits)
	}
	want := []time.Duration{0, 5 * time.Second, 5 * time.Second}
	if fmt.Sprint(clock.sleeps) != fmt.Sprint(want) {
		t.Fatalf("sleeps = %v, want %v", clock.sleeps, want)
	}
}

func TestRequestForbiddenWithoutRateLimitConsumesAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("X-RateLimit-Remaining", "42")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	if !errors.Is(err, ErrExhaustedRetries) {
		t.Fatalf("expected exhausted retries, got %v", err)
	}
	if hits != 3 {
		t.Fatalf("expected 3 requests, got %d", hits)
	}
}

func TestRequestExhaustsOnServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, clock := newTestClient(t, srv.URL)
	_, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	var exhausted *ExhaustedRetriesError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 3 {
		t.Fatalf("expected ExhaustedRetriesError after 3 attempts, got %v", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.HTTPStatusCode() != http.StatusInternalServerError {
		t.Fatalf("expected wrapped HTTPError 500, got %v", err)
	}
	if hits != 3 || len(clock.sleeps) != 0 {
		t.Fatalf("hits=%d sleeps=%v", hits, clock.sleeps)
	}
}

func TestRequestConnectionErrorSleepsBetweenAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c, clock := newTestClient(t, addr)
	_, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	if !errors.Is(err, ErrExhaustedRetries) {
		t.Fatalf("expected exhausted retries, got %v", err)
	}
	if len(clock.sleeps) != 2 {
		t.Fatalf("expected 2 pauses, got %v", clock.sleeps)
	}
	for _, d := range clock.sleeps {
		if d != 5*time.Second {
			t.Fatalf("unexpected pause %v", d)
		}
	}
}

func TestRequestTimeoutRetriesWithoutSleep(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, clock := newTestClient(t, srv.URL)
	c.HTTP.Timeout = 100 * time.Millisecond
	if _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if hits != 2 {
		t.Fatalf("expected 2 requests, got %d", hits)
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("timeouts must not pause, got %v", clock.sleeps)
	}
}

func TestRequestHonoursCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Request(ctx, http.MethodGet, "/x", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRateLimitWaitClampsToZero(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := Policy{Now: func() time.Time { return now }}
	if got := p.rateLimitWait(now.Add(-time.Minute).Unix()); got != 0 {
		t.Fatalf("wait for past reset = %v", got)
	}
	if got := p.rateLimitWait(now.Add(30 * time.Second).Unix()); got != 30*time.Second {
		t.Fatalf("wait = %v", got)
	}
}
