package checkpoint

import (
	"context"
	"testing"
	"time"
)

type testState struct {
	Weights []float64 `json:"weights"`
	Step    int       `json:"step"`
}

func newTestTransport(t *testing.T) *HTTPTransport[testState] {
	t.Helper()
	tr, err := NewHTTPTransport[testState]("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewHTTPTransport failed: %v", err)
	}
	t.Cleanup(func() { tr.Shutdown(false) })
	return tr
}

func TestHTTPTransport_RoundTrip(t *testing.T) {
	src := newTestTransport(t)
	dst := newTestTransport(t)

	state := testState{Weights: []float64{1.5, -2}, Step: 7}
	if err := src.SendCheckpoint(context.Background(), []int{1}, 7, state, time.Second); err != nil {
		t.Fatalf("SendCheckpoint failed: %v", err)
	}

	got, err := dst.RecvCheckpoint(context.Background(), 0, src.Metadata(), 7, time.Second)
	if err != nil {
		t.Fatalf("RecvCheckpoint failed: %v", err)
	}
	if got.Step != 7 || len(got.Weights) != 2 || got.Weights[0] != 1.5 {
		t.Errorf("Unexpected state: %+v", got)
	}
}

func TestHTTPTransport_RecvBeforeSend(t *testing.T) {
	src := newTestTransport(t)
	dst := newTestTransport(t)

	done := make(chan error, 1)
	go func() {
		_, err := dst.RecvCheckpoint(context.Background(), 0, src.Metadata(), 3, 2*time.Second)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := src.SendCheckpoint(context.Background(), []int{1}, 3, testState{Step: 3}, time.Second); err != nil {
		t.Fatalf("SendCheckpoint failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Expected fetch to succeed once staged: %v", err)
	}
}

func TestHTTPTransport_DisallowInvalidates(t *testing.T) {
	src := newTestTransport(t)
	dst := newTestTransport(t)

	if err := src.SendCheckpoint(context.Background(), []int{1}, 5, testState{Step: 5}, time.Second); err != nil {
		t.Fatalf("SendCheckpoint failed: %v", err)
	}
	src.Disallow()

	if _, err := dst.RecvCheckpoint(context.Background(), 0, src.Metadata(), 5, 300*time.Millisecond); err == nil {
		t.Fatal("Expected fetch after Disallow to fail")
	}
}

func TestHTTPTransport_WrongStepNotServed(t *testing.T) {
	src := newTestTransport(t)
	dst := newTestTransport(t)

	if err := src.SendCheckpoint(context.Background(), []int{1}, 5, testState{Step: 5}, time.Second); err != nil {
		t.Fatalf("SendCheckpoint failed: %v", err)
	}

	if _, err := dst.RecvCheckpoint(context.Background(), 0, src.Metadata(), 6, 300*time.Millisecond); err == nil {
		t.Fatal("Expected fetch for a different step to fail")
	}
}

func TestHTTPTransport_ShutdownIdempotent(t *testing.T) {
	tr, err := NewHTTPTransport[testState]("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewHTTPTransport failed: %v", err)
	}
	tr.Shutdown(true)
	tr.Shutdown(false)
}
