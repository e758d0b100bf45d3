package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	rootCAPassphrase string

	interCARootPassphrase string
	interCAPassphrase     string
)

var createRootCACmd = &cobra.Command{
	Use:   "createRootCA",
	Short: "Create the self-signed root CA",
	Long: `Create the self-signed root CA.

The private key is generated under private/ and encrypted with the given
passphrase. Fails if a root CA already exists.

Examples:
  certmgr createRootCA --passphrase secret1`,
	Args: cobra.NoArgs,
	RunE: runCreateRootCA,
}

var createInterCACmd = &cobra.Command{
	Use:   "createInterCA",
	Short: "Create the intermediate CA signed by the root",
	Long: `Create the intermediate CA, signed by the root CA.

Requires the root CA passphrase to unlock the root key, and a passphrase
for the new intermediate key. Fails unless the root CA exists and no
intermediate exists yet.

Examples:
  certmgr createInterCA --root-passphrase secret1 --passphrase secret2`,
	Args: cobra.NoArgs,
	RunE: runCreateInterCA,
}

func init() {
	createRootCACmd.Flags().StringVar(&rootCAPassphrase, "passphrase", "", "Passphrase for the new root key (required)")
	_ = createRootCACmd.MarkFlagRequired("passphrase")

	createInterCACmd.Flags().StringVar(&interCARootPassphrase, "root-passphrase", "", "Root CA key passphrase (required)")
	createInterCACmd.Flags().StringVar(&interCAPassphrase, "passphrase", "", "Passphrase for the new intermediate key (required)")
	_ = createInterCACmd.MarkFlagRequired("root-passphrase")
	_ = createInterCACmd.MarkFlagRequired("passphrase")
}

func runCreateRootCA(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	info, err := e.m.CreateRoot(cmd.Context(), []byte(rootCAPassphrase))
	if err != nil {
		return fmt.Errorf("failed to create root CA: %w", err)
	}

	fmt.Println("Root CA created successfully.")
	fmt.Printf("  Subject:     %s\n", info.Subject)
	fmt.Printf("  Validity:    %d days\n", info.ValidityDays)
	fmt.Printf("  Certificate: %s\n", info.CertPath)
	fmt.Printf("  Key:         %s\n", info.KeyHandle)
	return nil
}

func runCreateInterCA(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	info, err := e.m.CreateIntermediate(cmd.Context(), []byte(interCARootPassphrase), []byte(interCAPassphrase))
	if err != nil {
		return fmt.Errorf("failed to create intermediate CA: %w", err)
	}

	fmt.Println("Intermediate CA created successfully.")
	fmt.Printf("  Subject:     %s\n", info.Subject)
	fmt.Printf("  Validity:    %d days\n", info.ValidityDays)
	fmt.Printf("  Certificate: %s\n", info.CertPath)
	fmt.Printf("  Key:         %s\n", info.KeyHandle)
	return nil
}
