package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srikantkt/certmgr/internal/ca"
	"github.com/srikantkt/certmgr/internal/ledger"
	"github.com/srikantkt/certmgr/internal/profile"
)

var (
	csrType       string
	csrSANDNS     []string
	csrSANIP      []string
	csrPassphrase string

	signType       string
	signPassphrase string

	revokeReason     string
	revokePassphrase string
)

var createCertReqCmd = &cobra.Command{
	Use:   "createCertReq [common-name]",
	Short: "Generate a key pair and certificate signing request",
	Long: `Generate a key pair and a certificate signing request for a common name.

The key lands under private/ and the CSR under csr/. Without --san-dns the
common name itself becomes the DNS SAN; without --san-ip, 127.0.0.1.

Examples:
  certmgr createCertReq server.example.com
  certmgr createCertReq server.example.com --type server --san-dns server.example.com --san-dns www.example.com
  certmgr createCertReq alice --type client`,
	Args: cobra.ExactArgs(1),
	RunE: runCreateCertReq,
}

var signCertCmd = &cobra.Command{
	Use:   "signCert [csr-file]",
	Short: "Sign a CSR with the intermediate CA",
	Long: `Sign a certificate signing request with the intermediate CA.

The serial number is allocated from the ledger and never reused, even if
signing fails afterwards.

Examples:
  certmgr signCert csr/server.example.com.csr.pem --passphrase secret2
  certmgr signCert csr/alice.csr.pem --type client --passphrase secret2`,
	Args: cobra.ExactArgs(1),
	RunE: runSignCert,
}

var revokeCertCmd = &cobra.Command{
	Use:   "revokeCert [serial]",
	Short: "Revoke a certificate and regenerate the CRL",
	Long: `Revoke a certificate by its serial number and regenerate the CRL.

The revocation is recorded in the ledger first; if CRL generation then
fails, the certificate stays revoked and a warning is printed.

Examples:
  certmgr revokeCert 1000 --passphrase secret2
  certmgr revokeCert 1000 --passphrase secret2 --reason keyCompromise`,
	Args: cobra.ExactArgs(1),
	RunE: runRevokeCert,
}

var listCertsCmd = &cobra.Command{
	Use:   "listCerts",
	Short: "List certificates issued by the intermediate CA",
	Args:  cobra.NoArgs,
	RunE:  runListCerts,
}

func init() {
	flags := createCertReqCmd.Flags()
	flags.StringVarP(&csrType, "type", "t", "server", "Certificate type (server, client)")
	flags.StringArrayVar(&csrSANDNS, "san-dns", nil, "DNS subject alternative name (repeatable)")
	flags.StringArrayVar(&csrSANIP, "san-ip", nil, "IP subject alternative name (repeatable)")
	flags.StringVar(&csrPassphrase, "passphrase", "", "Passphrase for the new key (empty: unencrypted)")

	signCertCmd.Flags().StringVarP(&signType, "type", "t", "server", "Certificate type (server, client)")
	signCertCmd.Flags().StringVar(&signPassphrase, "passphrase", "", "Intermediate CA key passphrase (required)")
	_ = signCertCmd.MarkFlagRequired("passphrase")

	revokeCertCmd.Flags().StringVarP(&revokeReason, "reason", "r", "unspecified", "Revocation reason")
	revokeCertCmd.Flags().StringVar(&revokePassphrase, "passphrase", "", "Intermediate CA key passphrase (required)")
	_ = revokeCertCmd.MarkFlagRequired("passphrase")
}

func runCreateCertReq(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	var ips []net.IP
	for _, s := range csrSANIP {
		ip := net.ParseIP(s)
		if ip == nil {
			return fmt.Errorf("invalid IP address %q", s)
		}
		ips = append(ips, ip)
	}

	res, err := e.m.CreateCertRequest(cmd.Context(), ca.CSRRequest{
		CommonName: args[0],
		Type:       profile.CertType(csrType),
		DNSNames:   csrSANDNS,
		IPs:        ips,
		Passphrase: []byte(csrPassphrase),
	})
	if err != nil {
		return fmt.Errorf("failed to create certificate request: %w", err)
	}

	fmt.Println("Certificate request created successfully.")
	fmt.Printf("  CSR: %s\n", res.CSRPath)
	fmt.Printf("  Key: %s\n", res.KeyHandle)
	return nil
}

func runSignCert(cmd *cobra.Command, args []string) error {
	csrPEM, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read CSR: %w", err)
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	info, err := e.m.Issue(cmd.Context(), ca.IssueRequest{
		CSRPEM:     csrPEM,
		Type:       profile.CertType(signType),
		Passphrase: []byte(signPassphrase),
	})
	if err != nil {
		return fmt.Errorf("failed to sign certificate: %w", err)
	}

	fmt.Println("Certificate issued successfully.")
	fmt.Printf("  Serial:      %d\n", info.Serial)
	fmt.Printf("  Subject:     %s\n", info.Subject)
	fmt.Printf("  Not after:   %s\n", info.NotAfter.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Certificate: %s\n", info.ArtifactPath)
	return nil
}

func runRevokeCert(cmd *cobra.Command, args []string) error {
	serial, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid serial number %q", args[0])
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	res, err := e.m.Revoke(cmd.Context(), serial, []byte(revokePassphrase), revokeReason)
	if err != nil {
		return fmt.Errorf("failed to revoke certificate: %w", err)
	}

	fmt.Printf("Certificate %d revoked successfully.\n", serial)
	fmt.Printf("  Subject: %s\n", res.Record.Subject)
	fmt.Printf("  Reason:  %s\n", revokeReason)

	if res.CRLErr != nil {
		fmt.Printf("\nWarning: CRL generation failed: %v\n", res.CRLErr)
		fmt.Println("Run 'certmgr updateCRL' to retry.")
		return nil
	}
	fmt.Printf("\nCRL regenerated (number %d): %s\n", res.CRL.Number, res.CRL.Path)
	return nil
}

func runListCerts(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	infos, err := e.m.List(ledger.ScopeIntermediate)
	if err != nil {
		return fmt.Errorf("failed to list certificates: %w", err)
	}
	if len(infos) == 0 {
		fmt.Println("No certificates issued.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "SERIAL\tSUBJECT\tSTATUS\tNOT AFTER\tREVOKED AT")
	for _, info := range infos {
		revokedAt := "-"
		if info.RevokedAt != nil {
			revokedAt = info.RevokedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			info.Serial, info.Subject, info.Status,
			info.NotAfter.Format("2006-01-02 15:04"), revokedAt)
	}
	return w.Flush()
}
