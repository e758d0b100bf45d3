package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/srikantkt/certmgr/internal/api/server"
	"github.com/srikantkt/certmgr/internal/api/service"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the REST API server for the CA workspace.

The server exposes the full lifecycle under /api/v1 plus /health and
/ready probes, and shuts down gracefully on SIGINT/SIGTERM.

Environment variables:
  CERTMGR_LISTEN  Listen address (flag takes precedence)

Examples:
  certmgr serve
  certmgr serve --listen 127.0.0.1:8443`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from configuration)")
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	addr := serveListen
	if addr == "" {
		addr = os.Getenv("CERTMGR_LISTEN")
	}
	if addr == "" {
		addr = e.cfg.Listen
	}

	srv := server.New(&server.Config{
		Addr:    addr,
		Version: version,
	}, service.New(e.m, e.layout))
	return srv.Start()
}
