package main

import (
	"fmt"

	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate or print this node's signing identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("identity")
		kp, err := signing.LoadOrGenerateKeyPair(path)
		if err != nil {
			return fmt.Errorf("load or generate identity: %w", err)
		}
		fmt.Printf("Address: %s\n", kp.Address)
		fmt.Printf("Identity file: %s\n", path)
		return nil
	},
}

func init() {
	keygenCmd.Flags().String("identity", defaultIdentityPath, "Path to the node's signing identity file")
}
