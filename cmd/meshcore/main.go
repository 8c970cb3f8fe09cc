// Command meshcore is the fleet node binary: it wires every subsystem in
// pkg/ (signing, CRDT state store, event queue, gossip transport, PoC
// scheduler, overlay membership, NAT traversal, connection cache, DNS
// zone store, authorization) behind the HTTP gateway in pkg/api, and runs
// the node until signaled to stop. Structured as a cobra command tree
// with global persistent flags and per-subcommand flags.
package main

import (
	"fmt"
	"os"

	"github.com/cuemby/meshcore/pkg/log"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "meshcore",
	Short: "meshcore - confidential-VPS fleet control plane",
	Long: `meshcore runs one peer of a leaderless fleet: a CRDT-replicated
state store, a gossiped event queue, a Proof-of-Claim task scheduler,
encrypted overlay membership, and a DNS zone store, all fronted by a
signed/authenticated HTTP API.

There is no leader election and no central master - every node runs the
same binary and converges on the same state by gossip.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"meshcore version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(keygenCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
