package main

import (
	"log"

	"github.com/spf13/cobra"

	"replicaft/internal/store"
)

func newStoreCommand() *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Run a replica group's rendezvous store",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := store.NewServer(bind)
			if err != nil {
				return err
			}
			defer srv.Stop()

			log.Printf("[store] serving on %s", srv.Addr())
			waitForSignal()
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", ":29500", "listen address")
	return cmd
}
