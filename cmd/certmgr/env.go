package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/srikantkt/certmgr/internal/audit"
	"github.com/srikantkt/certmgr/internal/ca"
	"github.com/srikantkt/certmgr/internal/config"
	"github.com/srikantkt/certmgr/internal/ledger"
	"github.com/srikantkt/certmgr/internal/signer"
)

// env bundles everything a command needs: the configuration, the workspace
// layout, the open ledger and the assembled lifecycle engine.
type env struct {
	cfg    *config.Config
	layout config.Layout
	store  *ledger.Store
	log    *audit.Log
	m      *ca.Manager
}

func (e *env) close() {
	_ = e.log.Close()
	_ = e.store.Close()
}

// openEnv loads the workspace at --dir and assembles the engine. The
// configuration file must exist; commands that create it use openEnvWith.
func openEnv() (*env, error) {
	layout := config.Layout{Base: absDir()}
	cfg, err := config.Load(layout.ConfigPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no workspace at %s, run 'certmgr init' first", layout.Base)
		}
		return nil, err
	}
	return openEnvWith(cfg, layout)
}

// openEnvWith assembles the engine for a given configuration, creating the
// workspace directories as needed.
func openEnvWith(cfg *config.Config, layout config.Layout) (*env, error) {
	if err := layout.Ensure(); err != nil {
		return nil, err
	}

	store, err := ledger.Open(layout.LedgerPath(), ledger.WithSerialBase(cfg.SerialBase))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	path := auditLogPath
	if path == "" {
		path = layout.AuditLogPath()
	}
	w, err := audit.NewFileWriter(path)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	log := audit.NewLog(w)

	m := ca.NewManager(cfg, layout, store, signer.NewSoftware(layout.Base), ca.WithAuditLog(log))
	return &env{cfg: cfg, layout: layout, store: store, log: log, m: m}, nil
}

func absDir() string {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return baseDir
	}
	return abs
}
