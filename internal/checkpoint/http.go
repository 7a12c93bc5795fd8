package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const servePollInterval = 20 * time.Millisecond

// HTTPTransport serves staged checkpoints over HTTP. One instance runs
// per worker; recovering replicas fetch with a plain GET against the
// URL advertised as metadata.
type HTTPTransport[T any] struct {
	server   *http.Server
	listener net.Listener

	mu     sync.Mutex
	staged bool
	step   int
	body   []byte
}

// NewHTTPTransport starts a transport listening on bind (host:port,
// port 0 for arbitrary).
func NewHTTPTransport[T any](bind string) (*HTTPTransport[T], error) {
	lis, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", bind, err)
	}

	t := &HTTPTransport[T]{listener: lis}

	mux := http.NewServeMux()
	mux.HandleFunc("/checkpoint/", t.handleFetch)
	t.server = &http.Server{Handler: mux}

	go func() {
		_ = t.server.Serve(lis)
	}()

	return t, nil
}

// Metadata implements Transport.
func (t *HTTPTransport[T]) Metadata() string {
	return fmt.Sprintf("http://%s", t.listener.Addr().String())
}

// SendCheckpoint implements Transport. Staging replaces any previous
// checkpoint; the fetch itself is pulled by the destinations, so
// dstRanks plays no role in this transport.
func (t *HTTPTransport[T]) SendCheckpoint(ctx context.Context, dstRanks []int, step int, state T, timeout time.Duration) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	t.mu.Lock()
	t.staged = true
	t.step = step
	t.body = body
	t.mu.Unlock()
	return nil
}

// RecvCheckpoint implements Transport.
func (t *HTTPTransport[T]) RecvCheckpoint(ctx context.Context, srcRank int, metadata string, step int, timeout time.Duration) (T, error) {
	var zero T

	url := fmt.Sprintf("%s/checkpoint/%d", strings.TrimSuffix(metadata, "/"), step)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return zero, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("failed to fetch checkpoint from %s: %w", metadata, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return zero, fmt.Errorf("checkpoint fetch from %s returned %d: %s", metadata, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var state T
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return zero, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return state, nil
}

// Disallow implements Transport.
func (t *HTTPTransport[T]) Disallow() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.staged = false
	t.body = nil
}

// Shutdown implements Transport.
func (t *HTTPTransport[T]) Shutdown(wait bool) {
	if wait {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(ctx)
		return
	}
	_ = t.server.Close()
}

// handleFetch waits briefly for the requested step to be staged; the
// sender stages it when its own quorum result arrives, which may race
// the fetcher.
func (t *HTTPTransport[T]) handleFetch(w http.ResponseWriter, r *http.Request) {
	stepStr := strings.TrimPrefix(r.URL.Path, "/checkpoint/")
	step, err := strconv.Atoi(stepStr)
	if err != nil {
		http.Error(w, "invalid step", http.StatusBadRequest)
		return
	}

	ticker := time.NewTicker(servePollInterval)
	defer ticker.Stop()

	for {
		t.mu.Lock()
		if t.staged && t.step == step {
			body := t.body
			t.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
			return
		}
		t.mu.Unlock()

		select {
		case <-r.Context().Done():
			http.Error(w, fmt.Sprintf("no checkpoint staged for step %d", step), http.StatusNotFound)
			return
		case <-ticker.C:
		}
	}
}
