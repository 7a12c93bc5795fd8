package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"replicaft/internal/lighthouse"
)

func newLighthouseCommand() *cobra.Command {
	var (
		bind             string
		minReplicas      int
		joinTimeout      time.Duration
		heartbeatTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "lighthouse",
		Short: "Run the quorum service",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := lighthouse.NewServer(lighthouse.Options{
				Bind:             bind,
				MinReplicas:      minReplicas,
				JoinTimeout:      joinTimeout,
				HeartbeatTimeout: heartbeatTimeout,
			})
			if err != nil {
				return err
			}
			defer srv.Shutdown()

			log.Printf("[lighthouse] serving on %s (min_replicas=%d)", srv.Addr(), minReplicas)
			waitForSignal()
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", ":29510", "listen address")
	cmd.Flags().IntVar(&minReplicas, "min-replicas", 1, "minimum participants per quorum")
	cmd.Flags().DurationVar(&joinTimeout, "join-timeout", 100*time.Millisecond, "how long to wait for known-alive members before cutting a quorum")
	cmd.Flags().DurationVar(&heartbeatTimeout, "heartbeat-timeout", 5*time.Second, "deadline after which a silent replica is declared failed")
	return cmd
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}
