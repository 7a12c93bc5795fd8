package manager

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"replicaft/internal/api"
	"replicaft/internal/fault"
	"replicaft/internal/lighthouse"
)

// failureListener subscribes to the lighthouse failure feed and turns
// peer-death notifications into step errors so in-flight collectives
// abort instead of waiting out their timeouts.
type failureListener struct {
	lighthouseAddr   string
	connectTimeout   time.Duration
	subscribeTimeout time.Duration
	errCh            chan<- *fault.Envelope

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newFailureListener(addr string, connectTimeout, subscribeTimeout time.Duration, errCh chan<- *fault.Envelope) *failureListener {
	ctx, cancel := context.WithCancel(context.Background())
	return &failureListener{
		lighthouseAddr:   addr,
		connectTimeout:   connectTimeout,
		subscribeTimeout: subscribeTimeout,
		errCh:            errCh,
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
	}
}

func (l *failureListener) start() {
	go l.run()
}

// stop cancels the subscription and waits for the listener goroutine,
// bounded so a wedged stream cannot hang shutdown.
func (l *failureListener) stop() {
	l.cancel()
	select {
	case <-l.done:
	case <-time.After(10 * time.Second):
		log.Printf("[listener] timed out waiting for failure listener to stop")
	}
}

func (l *failureListener) run() {
	defer close(l.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.subscribeTimeout
	bo.MaxElapsedTime = 0 // reconnect until cancelled

	for l.ctx.Err() == nil {
		err := l.subscribe()
		if l.ctx.Err() != nil {
			return
		}
		wait := bo.NextBackOff()
		log.Printf("[listener] failure subscription lost: %v; reconnecting in %s", err, wait)
		select {
		case <-l.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// subscribe holds one stream open, forwarding notifications until the
// stream breaks or the listener is stopped.
func (l *failureListener) subscribe() error {
	client, err := lighthouse.Dial(l.lighthouseAddr, l.connectTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	streamCtx, streamCancel := context.WithCancel(l.ctx)
	defer streamCancel()

	stream, err := client.SubscribeFailures(streamCtx)
	if err != nil {
		return err
	}

	type recvResult struct {
		note *api.FailureNotification
		err  error
	}
	recvCh := make(chan recvResult)
	go func() {
		for {
			note, err := stream.Recv()
			select {
			case recvCh <- recvResult{note, err}:
			case <-streamCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-l.ctx.Done():
			return l.ctx.Err()
		case res := <-recvCh:
			if res.err != nil {
				return res.err
			}
			env := fault.Newf("peer failure detected: replica %s has failed", res.note.ReplicaID)
			select {
			case l.errCh <- env:
			default:
				// A report is already queued; one abort is enough.
			}
		}
	}
}
