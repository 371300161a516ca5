package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgevoice/edgevoice/internal/recognizer"
	"github.com/edgevoice/edgevoice/internal/wakeword"
)

type fakeSession struct {
	mu      sync.Mutex
	starts  int
	stops   int
	pauses  int
	state   wakeword.State
	failOnStart bool
}

func (f *fakeSession) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnStart {
		return errors.New("no mic")
	}
	f.starts++
	f.state = wakeword.StateListening
	return nil
}

func (f *fakeSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = wakeword.StateStopped
	return nil
}

func (f *fakeSession) PauseAsync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	f.state = wakeword.StatePaused
	return nil
}

func (f *fakeSession) State() wakeword.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) counts() (starts, stops, pauses int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.pauses
}

type fakeEngine struct {
	mu        sync.Mutex
	sentences []string
	streams   int
	err       error
}

func (f *fakeEngine) Stream(_ context.Context, _ recognizer.Options, onSentence func(string)) ([]string, error) {
	f.mu.Lock()
	f.streams++
	sentences := f.sentences
	err := f.err
	f.mu.Unlock()
	for _, s := range sentences {
		if onSentence != nil {
			onSentence(s)
		}
	}
	return sentences, err
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams
}

type fakeForwarder struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeForwarder) Send(_ context.Context, transcript string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, transcript)
	return "ack", nil
}

func (f *fakeForwarder) transcripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRunStartsAndStopsSession(t *testing.T) {
	session := &fakeSession{}
	a, err := New(Config{
		Session:    session,
		Recognizer: &fakeEngine{},
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, func() { starts, _, _ := session.counts(); return starts == 1 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, stops, _ := session.counts()
	if stops != 1 {
		t.Errorf("stops = %d, want 1", stops)
	}
}

func TestDetectionTriggersRecognitionAndForwarding(t *testing.T) {
	session := &fakeSession{}
	engine := &fakeEngine{sentences: []string{"turn on the light", "please"}}
	fwd := &fakeForwarder{}

	a, err := New(Config{
		Session:    session,
		Recognizer: engine,
		Forwarder:  fwd,
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	waitFor(t, func() { starts, _, _ := session.counts(); return starts == 1 })

	a.Notify(wakeword.Detection{Model: "hey_edge", Confidence: 0.8, Timestamp: time.Now()})

	waitFor(t, func() { return len(fwd.transcripts()) == 2 })
	got := fwd.transcripts()
	if got[0] != "turn on the light" || got[1] != "please" {
		t.Errorf("forwarded = %v", got)
	}

	// Session paused for recognition, then resumed.
	_, _, pauses := session.counts()
	if pauses != 1 {
		t.Errorf("pauses = %d, want 1", pauses)
	}
	waitFor(t, func() { starts, _, _ := session.counts(); return starts == 2 })
}

func TestForwardingFailureDoesNotStopLoop(t *testing.T) {
	session := &fakeSession{}
	engine := &fakeEngine{sentences: []string{"hello"}}
	fwd := &fakeForwarder{err: errors.New("endpoint down")}

	a, _ := New(Config{
		Session:    session,
		Recognizer: engine,
		Forwarder:  fwd,
		Logger:     zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	waitFor(t, func() { starts, _, _ := session.counts(); return starts == 1 })
	a.Notify(wakeword.Detection{Model: "hey_edge", Confidence: 0.9})

	// The loop must resume listening despite the failed delivery.
	waitFor(t, func() { starts, _, _ := session.counts(); return starts == 2 })
}

func TestNilForwarderOnlyLogs(t *testing.T) {
	session := &fakeSession{}
	engine := &fakeEngine{sentences: []string{"hello"}}

	a, _ := New(Config{
		Session:    session,
		Recognizer: engine,
		Logger:     zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	waitFor(t, func() { starts, _, _ := session.counts(); return starts == 1 })
	a.Notify(wakeword.Detection{Model: "hey_edge", Confidence: 0.9})
	waitFor(t, func() { starts, _, _ := session.counts(); return starts == 2 })
	if engine.streamCount() != 1 {
		t.Errorf("streams = %d, want 1", engine.streamCount())
	}
}

func TestDetectionWhileBusyIsDropped(t *testing.T) {
	session := &fakeSession{}
	a, _ := New(Config{
		Session:    session,
		Recognizer: &fakeEngine{},
		Logger:     zerolog.Nop(),
	})

	// Without a running loop the channel holds one detection; the second
	// must not block.
	done := make(chan struct{})
	go func() {
		a.Notify(wakeword.Detection{Model: "hey_edge"})
		a.Notify(wakeword.Detection{Model: "hey_edge"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a busy handler")
	}
}

func TestNewRequiresSessionAndRecognizer(t *testing.T) {
	if _, err := New(Config{Recognizer: &fakeEngine{}}); err == nil {
		t.Error("New accepted a nil session")
	}
	if _, err := New(Config{Session: &fakeSession{}}); err == nil {
		t.Error("New accepted a nil recognizer")
	}
}

func TestOnDetectionHookFires(t *testing.T) {
	session := &fakeSession{}
	engine := &fakeEngine{}

	var mu sync.Mutex
	var hooked []wakeword.Detection
	a, _ := New(Config{
		Session:    session,
		Recognizer: engine,
		OnDetection: func(d wakeword.Detection) {
			mu.Lock()
			hooked = append(hooked, d)
			mu.Unlock()
		},
		Logger: zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	waitFor(t, func() { starts, _, _ := session.counts(); return starts == 1 })
	a.Notify(wakeword.Detection{Model: "hey_edge", Confidence: 0.7})
	waitFor(t, func() {
		mu.Lock()
		defer mu.Unlock()
		return len(hooked) == 1
	})
}
