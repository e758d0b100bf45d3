// Command certmgr manages a two-tier certificate authority: a root CA, an
// intermediate CA, and the leaf certificates the intermediate issues.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/srikantkt/certmgr/internal/logger"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	baseDir      string
	auditLogPath string
	debug        bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "certmgr",
	Short: "certmgr - a two-tier certificate authority manager",
	Long: `certmgr manages a local two-tier CA hierarchy (root and intermediate)
with crash-safe serial allocation, a certificate ledger, revocation
bookkeeping and CRL generation.

The workspace directory holds everything: configuration under conf/,
certificates under certs/, encrypted keys under private/, CSRs under csr/
and the CRL under crl/.

Examples:
  # Initialize a workspace and build the hierarchy
  certmgr init --org "My Lab CA"
  certmgr createRootCA --passphrase secret1
  certmgr createInterCA --root-passphrase secret1 --passphrase secret2

  # Issue and revoke a server certificate
  certmgr createCertReq server.example.com --san-dns server.example.com
  certmgr signCert csr/server.example.com.csr.pem --passphrase secret2
  certmgr revokeCert 1000 --passphrase secret2 --reason superseded

  # Serve the REST API
  certmgr serve --listen :8443`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Setup(debug)
		if auditLogPath == "" {
			auditLogPath = os.Getenv("CERTMGR_AUDIT_LOG")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&baseDir, "dir", "d", ".", "Workspace directory")
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "audit-log", "",
		"Path to audit log file (default: <dir>/audit.log, or set CERTMGR_AUDIT_LOG)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(createRootCACmd)
	rootCmd.AddCommand(createInterCACmd)
	rootCmd.AddCommand(createCertReqCmd)
	rootCmd.AddCommand(signCertCmd)
	rootCmd.AddCommand(revokeCertCmd)
	rootCmd.AddCommand(updateCRLCmd)
	rootCmd.AddCommand(listCertsCmd)
	rootCmd.AddCommand(serveCmd)
}
