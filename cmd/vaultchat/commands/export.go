package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportVault string

var exportCmd = &cobra.Command{
	Use:   "export <conversationID>",
	Short: "Export a conversation into a vault inbox",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportVault, "vault", "", "Target vault name")
	exportCmd.MarkFlagRequired("vault")
}

func runExport(cmd *cobra.Command, args []string) error {
	_, services, err := buildServices(cmd.Context())
	if err != nil {
		return err
	}

	path, err := services.Export.ToInbox(cmd.Context(), args[0], exportVault)
	if err != nil {
		return err
	}

	fmt.Println(path)
	return nil
}
