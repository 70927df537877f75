// Package main implements poold, the pooldb server and its command line
// client.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                 poold                   │
//	├─────────────────────────────────────────┤
//	│  serve   - HTTP API over a shard store  │
//	│  update  - POST /update to a server     │
//	│  query   - POST /query to a server      │
//	├─────────────────────────────────────────┤
//	│  api.Router → service.Service           │
//	│     → shard.Registry (locks)            │
//	│     → storage.Store (memory|file|badger)│
//	└─────────────────────────────────────────┘
//
// Configuration (serve):
//   - --config: optional YAML file
//   - POOLD_LISTEN, POOLD_BACKEND, POOLD_DATA_DIR, POOLD_LOCK_TIMEOUT,
//     POOLD_LOG_LEVEL, POOLD_LOG_FORMAT, POOLD_TRACING override it
//
// Example usage:
//
//	# Start a server with file storage under ./data
//	poold serve
//
//	# Append values and ask for the 90th percentile
//	poold update --key 99991369 --values 1,7,2,6
//	poold query --key 99991369 --percentile 90
package main

import (
	"log"

	"github.com/spf13/cobra"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "poold",
		Short:         "Sharded pool store with percentile queries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newUpdateCmd(), newQueryCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logFatal("poold: %v", err)
	}
}
