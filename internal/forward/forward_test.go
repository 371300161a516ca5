package forward

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(endpoint string) *Client {
	return NewClient(Config{
		Endpoint:    endpoint,
		WakeWord:    "hey_edge",
		MaxAttempts: 3,
		BackoffBase: 5 * time.Millisecond,
		Logger:      zerolog.Nop(),
	})
}

func TestSendDeliversPayload(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		json.NewEncoder(w).Encode(Response{Response: "done", Status: "success"})
	}))
	defer srv.Close()

	reply, err := newTestClient(srv.URL).Send(context.Background(), "turn on the light")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply != "done" {
		t.Errorf("reply = %q, want %q", reply, "done")
	}
	if got.Transcript != "turn on the light" {
		t.Errorf("transcript = %q", got.Transcript)
	}
	if got.Source != "edgevoice" {
		t.Errorf("source = %q", got.Source)
	}
	if got.WakeWord != "hey_edge" {
		t.Errorf("wake_word = %q", got.WakeWord)
	}
	if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", got.Timestamp, err)
	}
}

func TestSendRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Send(context.Background(), "hello"); err == nil {
		t.Fatal("Send succeeded, want error")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestSendHonorsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{
		Endpoint:    srv.URL,
		MaxAttempts: 3,
		BackoffBase: time.Hour,
		Logger:      zerolog.Nop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, "hello")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}, zerolog.Nop())
	fail := func() error { return errors.New("boom") }

	b.Execute(fail)
	if b.State() != BreakerClosed {
		t.Fatalf("state after 1 failure = %v, want closed", b.State())
	}
	b.Execute(fail)
	if b.State() != BreakerOpen {
		t.Fatalf("state after 2 failures = %v, want open", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen", err)
	}
	if called {
		t.Error("fn was called while the breaker was open")
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMax: 2}, zerolog.Nop())

	b.Execute(func() error { return errors.New("boom") })
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(5 * time.Millisecond)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}

	ok := func() error { return nil }
	b.Execute(ok)
	b.Execute(ok)
	if b.State() != BreakerClosed {
		t.Fatalf("state after probes = %v, want closed", b.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Millisecond}, zerolog.Nop())

	b.Execute(func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	b.Execute(func() error { return errors.New("still down") })
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
}

func TestSendSkipsRetriesWhenBreakerOpen(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := NewBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}, zerolog.Nop())
	c := NewClient(Config{
		Endpoint:    srv.URL,
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
		Logger:      zerolog.Nop(),
		Breaker:     breaker,
	})

	c.Send(context.Background(), "first")
	before := calls.Load()

	_, err := c.Send(context.Background(), "second")
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen", err)
	}
	if calls.Load() != before {
		t.Error("request reached the endpoint while the breaker was open")
	}
	if c.Healthy() {
		t.Error("Healthy() = true with an open breaker")
	}
}
