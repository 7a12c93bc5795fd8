package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	root := newRootCommand()
	if err := root.Execute(); err != nil {
		log.Printf("[replicaft] %v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "replicaft",
		Short:         "Fault-tolerant replica-group step coordination",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newLighthouseCommand())
	cmd.AddCommand(newStoreCommand())
	cmd.AddCommand(newTrainerCommand())
	return cmd
}
