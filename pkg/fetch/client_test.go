package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestGetRetryBound(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testPolicy(4))
	_, err := c.Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected failure, got nil")
	}

	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %T: %v", err, err)
	}
	if f.Kind != KindServerError {
		t.Fatalf("expected server_error kind, got %s", f.Kind)
	}
	if f.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", f.Attempts)
	}
	if got := atomic.LoadInt32(&hits); got != 4 {
		t.Fatalf("expected exactly 4 requests, got %d", got)
	}
}

func TestGetNoRetryOnPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testPolicy(5))
	_, err := c.Get(context.Background(), srv.URL)

	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %T", err)
	}
	if f.Kind != KindPermanent {
		t.Fatalf("expected permanent kind, got %s", f.Kind)
	}
	if f.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", f.Attempts)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected exactly 1 request, got %d", got)
	}
}

func TestGetRecoversAfterRateLimit(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := NewClient(testPolicy(5))
	body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if string(body) != "payload" {
		t.Fatalf("unexpected body %q", body)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestGetTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connections now refused

	c := NewClient(testPolicy(2))
	_, err := c.Get(context.Background(), url)

	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %T", err)
	}
	if f.Kind != KindTransport {
		t.Fatalf("expected transport kind, got %s", f.Kind)
	}
	if f.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.Attempts)
	}
}

func TestGetCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Second, MaxDelay: 10 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Get(ctx, srv.URL)
	if err == nil {
		t.Fatal("expected failure after cancellation")
	}
	if time.Since(start) > time.Second {
		t.Fatal("Get did not return promptly after cancellation")
	}
}

func TestParseRetryAfter(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"0", 0},
		{"-1", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := parseRetryAfter(tc.in); got != tc.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestBackoffBounded(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 8, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		for i := 0; i < 50; i++ {
			d := backoff(p, attempt)
			if d <= 0 || d > p.MaxDelay {
				t.Fatalf("attempt %d: backoff %v outside (0, %v]", attempt, d, p.MaxDelay)
			}
		}
	}
}
