package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srikantkt/certmgr/internal/config"
)

var (
	initCountry  string
	initState    string
	initLocality string
	initOrg      string
	initRootCN   string
	initInterCN  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a CA workspace",
	Long: `Initialize a CA workspace in the target directory.

Creates the directory layout (conf/, certs/, csr/, private/, crl/), writes
conf/certmgr.yaml with the effective configuration and renders the OpenSSL
configuration templates. Existing certificates and the ledger are left
untouched, so init is safe to re-run after changing configuration flags.

Examples:
  certmgr init
  certmgr init --dir /srv/ca --org "Example Corp" --country US`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	flags := initCmd.Flags()
	flags.StringVar(&initCountry, "country", "", "Subject country code")
	flags.StringVar(&initState, "state", "", "Subject state or province")
	flags.StringVar(&initLocality, "locality", "", "Subject locality")
	flags.StringVar(&initOrg, "org", "", "Subject organization")
	flags.StringVar(&initRootCN, "root-cn", "", "Root CA common name")
	flags.StringVar(&initInterCN, "inter-cn", "", "Intermediate CA common name")
}

func runInit(cmd *cobra.Command, args []string) error {
	layout := config.Layout{Base: absDir()}

	// Start from the existing configuration when re-initializing.
	cfg, err := config.Load(layout.ConfigPath())
	if err != nil {
		cfg = config.Default(config.Hostname())
	}

	if initCountry != "" {
		cfg.Country = initCountry
	}
	if initState != "" {
		cfg.State = initState
	}
	if initLocality != "" {
		cfg.Locality = initLocality
	}
	if initOrg != "" {
		cfg.Organization = initOrg
	}
	if initRootCN != "" {
		cfg.RootCACN = initRootCN
	}
	if initInterCN != "" {
		cfg.InterCACN = initInterCN
	}

	e, err := openEnvWith(cfg, layout)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.m.InitWorkspace(); err != nil {
		return fmt.Errorf("failed to initialize workspace: %w", err)
	}

	fmt.Printf("Workspace initialized at %s\n", layout.Base)
	fmt.Printf("  Configuration: %s\n", layout.ConfigPath())
	fmt.Printf("  Root CA CN:    %s\n", cfg.RootCACN)
	fmt.Printf("  Inter CA CN:   %s\n", cfg.InterCACN)
	return nil
}
