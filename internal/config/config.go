// Package config holds the certmgr configuration and on-disk layout.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the certmgr configuration, persisted as YAML in the conf
// directory by init and reloaded by every later command.
type Config struct {
	Country      string `yaml:"country"`
	State        string `yaml:"state"`
	Locality     string `yaml:"locality"`
	Organization string `yaml:"organization"`

	RootCACN  string `yaml:"root_ca_cn"`
	InterCACN string `yaml:"inter_ca_cn"`

	RootCADays  int `yaml:"root_ca_days"`
	InterCADays int `yaml:"inter_ca_days"`
	CertDays    int `yaml:"cert_days"`
	CRLDays     int `yaml:"crl_days"`

	SerialBase uint64 `yaml:"serial_base"`

	// SigningTimeout bounds each signing service call.
	SigningTimeout time.Duration `yaml:"signing_timeout"`

	// Listen is the API server bind address.
	Listen string `yaml:"listen"`
}

// Default returns the configuration with the stock defaults, using fqdn in
// the CA common names.
func Default(fqdn string) *Config {
	if fqdn == "" {
		fqdn = "localhost"
	}
	return &Config{
		Country:        "US",
		State:          "California",
		Locality:       "San Francisco",
		Organization:   "Local Development CA",
		RootCACN:       "Root CA " + fqdn,
		InterCACN:      "Intermediate CA " + fqdn,
		RootCADays:     3650,
		InterCADays:    1825,
		CertDays:       365,
		CRLDays:        30,
		SerialBase:     1000,
		SigningTimeout: 30 * time.Second,
		Listen:         ":8443",
	}
}

// Hostname returns the machine FQDN for default CA common names.
func Hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return name
}

// Load reads the configuration from path. Missing fields keep their
// defaults, so old config files survive new options.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default(Hostname())
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: conf dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the configuration for values the engine cannot work with.
func (c *Config) Validate() error {
	if c.RootCADays <= 0 || c.InterCADays <= 0 || c.CertDays <= 0 {
		return fmt.Errorf("config: validity days must be positive")
	}
	if c.CRLDays <= 0 {
		return fmt.Errorf("config: crl_days must be positive")
	}
	if c.SigningTimeout <= 0 {
		return fmt.Errorf("config: signing_timeout must be positive")
	}
	return nil
}

// Layout maps the base directory to the certmgr on-disk structure.
type Layout struct {
	Base string
}

func (l Layout) ConfDir() string    { return filepath.Join(l.Base, "conf") }
func (l Layout) CertsDir() string   { return filepath.Join(l.Base, "certs") }
func (l Layout) CSRDir() string     { return filepath.Join(l.Base, "csr") }
func (l Layout) PrivateDir() string { return filepath.Join(l.Base, "private") }
func (l Layout) CRLDir() string     { return filepath.Join(l.Base, "crl") }

// ConfigPath is the persisted configuration file.
func (l Layout) ConfigPath() string {
	return filepath.Join(l.ConfDir(), "certmgr.yaml")
}

// LedgerPath is the bbolt database file.
func (l Layout) LedgerPath() string {
	return filepath.Join(l.Base, "ledger.db")
}

// AuditLogPath is the hash-chained audit log.
func (l Layout) AuditLogPath() string {
	return filepath.Join(l.Base, "audit.log")
}

// Ensure creates the directory structure. The private key directory is
// restricted to the owner.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.ConfDir(), l.CertsDir(), l.CSRDir(), l.CRLDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(l.PrivateDir(), 0700); err != nil {
		return fmt.Errorf("config: create %s: %w", l.PrivateDir(), err)
	}
	return nil
}
