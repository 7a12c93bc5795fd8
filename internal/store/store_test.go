package store

import (
	"context"
	"testing"
	"time"
)

func TestInMemory_SetGet(t *testing.T) {
	s := NewInMemory()

	if _, ok := s.Get("missing"); ok {
		t.Error("Expected missing key to not be found")
	}

	s.Set("k", []byte("v"))
	got, ok := s.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("Expected v, got %q (found=%v)", got, ok)
	}
}

func TestInMemory_WaitExistingKey(t *testing.T) {
	s := NewInMemory()
	s.Set("k", []byte("v"))

	got, err := s.Wait(context.Background(), "k")
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Expected v, got %q", got)
	}
}

func TestInMemory_WaitBlocksUntilSet(t *testing.T) {
	s := NewInMemory()

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Set("k", []byte("late"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := s.Wait(ctx, "k")
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if string(got) != "late" {
		t.Errorf("Expected late, got %q", got)
	}
}

func TestInMemory_WaitTimeout(t *testing.T) {
	s := NewInMemory()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := s.Wait(ctx, "never"); err == nil {
		t.Error("Expected timeout error")
	}
}

func TestInMemory_MultipleWaiters(t *testing.T) {
	s := NewInMemory()

	const n = 4
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			v, err := s.Wait(ctx, "shared")
			if err != nil {
				results <- "err"
				return
			}
			results <- string(v)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	s.Set("shared", []byte("x"))

	for i := 0; i < n; i++ {
		if got := <-results; got != "x" {
			t.Errorf("Waiter %d: expected x, got %q", i, got)
		}
	}
}

func TestServerClient_RoundTrip(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer srv.Stop()

	client, err := Dial(srv.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, found, err := client.Get(ctx, "k")
	if err != nil || !found || string(got) != "v" {
		t.Fatalf("Get = %q found=%v err=%v, expected v", got, found, err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = client.Set(ctx, "later", []byte("w"))
	}()

	waited, err := client.Wait(ctx, "later", time.Second)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if string(waited) != "w" {
		t.Errorf("Expected w, got %q", waited)
	}
}
