package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var authKeyCmd = &cobra.Command{
	Use:   "auth-key",
	Short: "Print the gateway auth key from the secrets service",
	Long: `Auth-key retrieves the network gateway authentication key and
prints it to stdout, for pipelines that must authenticate to the
gateway before they can reach a cluster.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sc, err := newSecretsClient(cfg)
		if err != nil {
			return err
		}

		key, err := sc.FetchAuthKey(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to retrieve auth key: %v", err)
		}
		fmt.Println(key)
		return nil
	},
}
