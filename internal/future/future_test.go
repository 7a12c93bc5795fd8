package future

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSetResultOnce(t *testing.T) {
	f := New[int]()
	f.SetResult(7)
	f.SetResult(8)
	f.SetErr(errors.New("late"))

	v, err := f.Value()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 7 {
		t.Fatalf("expected first result to win, got %d", v)
	}
}

func TestWaitCancelled(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTimeoutExpires(t *testing.T) {
	f := New[int]()
	out := Timeout(f, 10*time.Millisecond)

	<-out.Done()
	if out.Err() == nil {
		t.Fatal("expected timeout error")
	}

	// The original future completing later must not change the result.
	f.SetResult(1)
	if out.Err() == nil {
		t.Fatal("timeout result overwritten")
	}
}

func TestTimeoutPassesThrough(t *testing.T) {
	f := New[string]()
	out := Timeout(f, time.Second)
	f.SetResult("ok")

	v, err := out.Wait(context.Background())
	if err != nil || v != "ok" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestThenChains(t *testing.T) {
	f := New[int]()
	out := Then(f, func(v int, err error) (string, error) {
		if err != nil {
			return "", err
		}
		if v == 3 {
			return "three", nil
		}
		return "", errors.New("unexpected input")
	})

	f.SetResult(3)
	v, err := out.Wait(context.Background())
	if err != nil || v != "three" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestThenSwallowsError(t *testing.T) {
	f := New[int]()
	out := Then(f, func(v int, err error) (int, error) {
		if err != nil {
			return -1, nil
		}
		return v, nil
	})

	f.SetErr(errors.New("boom"))
	v, err := out.Wait(context.Background())
	if err != nil || v != -1 {
		t.Fatalf("got %d, %v", v, err)
	}
}
