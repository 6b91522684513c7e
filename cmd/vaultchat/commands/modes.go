package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultchat/vaultchat/internal/config"
	"github.com/vaultchat/vaultchat/internal/mode"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List available conversation modes",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := getWorkDir()
		if err != nil {
			return err
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}

		registry, err := mode.NewRegistry(cfg.ModesFile)
		if err != nil {
			return err
		}

		for _, m := range registry.List() {
			fmt.Printf("%-12s %s\n", m.Name, m.Description)
		}
		return nil
	},
}
