package main

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"replicaft/internal/backend"
	"replicaft/internal/checkpoint"
	"replicaft/internal/config"
	"replicaft/internal/manager"
)

// modelState is the demo trainer's checkpointable state: a plain
// weight vector updated by SGD on a synthetic objective.
type modelState struct {
	Weights []float64 `json:"weights"`
}

func newTrainerCommand() *cobra.Command {
	var (
		configPath    string
		steps         int
		dim           int
		learningRate  float64
		stepInterval  time.Duration
		transportBind string
	)

	cmd := &cobra.Command{
		Use:   "trainer",
		Short: "Run a demo trainer replica against a synthetic objective",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runTrainer(cfg, steps, dim, learningRate, stepInterval, transportBind)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config (optional, env vars also apply)")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps to train (0 for unlimited)")
	cmd.Flags().IntVar(&dim, "dim", 4, "model dimension")
	cmd.Flags().Float64Var(&learningRate, "lr", 0.05, "learning rate")
	cmd.Flags().DurationVar(&stepInterval, "step-interval", 0, "artificial delay per step, for demos")
	cmd.Flags().StringVar(&transportBind, "transport-bind", "127.0.0.1:0", "checkpoint transport listen address")
	return cmd
}

func runTrainer(cfg *config.Config, steps, dim int, lr float64, stepInterval time.Duration, transportBind string) error {
	transport, err := checkpoint.NewHTTPTransport[manager.Bundle[modelState]](transportBind)
	if err != nil {
		return err
	}

	opts := cfg.ManagerOptions()
	b := backend.NewStoreBackend(opts.ConnectTimeout, opts.Timeout)

	m, err := manager.NewManager[modelState](opts, b, transport)
	if err != nil {
		transport.Shutdown(false)
		return err
	}
	defer m.Shutdown(true)

	state := modelState{Weights: make([]float64, dim)}
	for i := range state.Weights {
		state.Weights[i] = rand.NormFloat64()
	}
	m.SetStateFuncs(
		func(s modelState) { state = s },
		func() modelState { return state },
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("[trainer] %s starting: dim=%d lr=%g", m.ReplicaID(), dim, lr)

	for done := 0; steps == 0 || done < steps; done++ {
		select {
		case <-stop:
			log.Printf("[trainer] interrupted, shutting down")
			return nil
		default:
		}

		if err := trainStep(m, &state, lr); err != nil {
			if errors.Is(err, manager.ErrMaxRetries) {
				return fmt.Errorf("giving up: %w", err)
			}
			return err
		}

		if stepInterval > 0 {
			time.Sleep(stepInterval)
		}
	}

	log.Printf("[trainer] finished at step %d (batches committed: %d)", m.CurrentStep(), m.BatchesCommitted())
	return nil
}

// trainStep runs one coordinated SGD step: minimize ||w||^2 so the
// weights converge to zero and progress is easy to eyeball.
func trainStep(m *manager.Manager[modelState], state *modelState, lr float64) error {
	if err := m.StartQuorum(true, false); err != nil {
		return err
	}

	grad := make([]float64, len(state.Weights))
	for i, w := range state.Weights {
		grad[i] = 2*w + rand.NormFloat64()*0.01
	}

	fut := m.AllReduce(grad)

	ok, err := m.ShouldCommit()
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("[trainer] step %d rolled back, retrying", m.CurrentStep())
		return nil
	}

	<-fut.Done()
	reduced, err := fut.Value()
	if err != nil {
		return err
	}
	for i := range state.Weights {
		state.Weights[i] -= lr * reduced[i]
	}

	var norm float64
	for _, w := range state.Weights {
		norm += w * w
	}
	log.Printf("[trainer] committed step %d: |w|^2=%.4f participants=%d", m.CurrentStep(), norm, m.NumParticipants())
	return nil
}
