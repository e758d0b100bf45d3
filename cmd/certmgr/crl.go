package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateCRLPassphrase string

var updateCRLCmd = &cobra.Command{
	Use:   "updateCRL",
	Short: "Regenerate the certificate revocation list",
	Long: `Regenerate the CRL from the current set of revoked certificates.

Each regeneration gets a fresh, strictly increasing CRL number. Useful to
refresh the CRL validity window or to retry after a failed regeneration.

Examples:
  certmgr updateCRL --passphrase secret2`,
	Args: cobra.NoArgs,
	RunE: runUpdateCRL,
}

func init() {
	updateCRLCmd.Flags().StringVar(&updateCRLPassphrase, "passphrase", "", "Intermediate CA key passphrase (required)")
	_ = updateCRLCmd.MarkFlagRequired("passphrase")
}

func runUpdateCRL(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	info, err := e.m.UpdateCRL(cmd.Context(), []byte(updateCRLPassphrase))
	if err != nil {
		return fmt.Errorf("failed to update CRL: %w", err)
	}

	fmt.Println("CRL updated successfully.")
	fmt.Printf("  Number:      %d\n", info.Number)
	fmt.Printf("  Revoked:     %d\n", info.RevokedCount)
	fmt.Printf("  Next update: %s\n", info.NextUpdate.Format("2006-01-02 15:04:05"))
	fmt.Printf("  File:        %s\n", info.Path)
	return nil
}
