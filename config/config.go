// Package config loads per-connection configuration for the kernel:
// engine invariant name, connection string, read/write vs read-only
// intent, SQL tracing, and application-level-encryption settings.
package config

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/BurntSushi/toml"
)

// EncryptionMode mirrors the Encryption Adapter's three modes.
type EncryptionMode string

const (
	EncryptionOff           EncryptionMode = "off"
	EncryptionRandom        EncryptionMode = "random"
	EncryptionDeterministic EncryptionMode = "deterministic"
)

// FieldEncryption names one field's encryption mode within a connection's
// application-level-encryption configuration.
type FieldEncryption struct {
	Table string         `toml:"table"`
	Field string         `toml:"field"`
	Mode  EncryptionMode `toml:"mode"`
}

// ApplicationEncryption is the ALE configuration surface named in spec §6.
type ApplicationEncryption struct {
	Enabled         bool              `toml:"enabled"`
	CertificateRef  string            `toml:"certificate_ref"`
	SaltSeed        string            `toml:"salt_seed"`
	Fields          []FieldEncryption `toml:"fields"`
}

// Connection is one named connection's configuration.
type Connection struct {
	// Invariant names which dialect/provider to use: "filedb", "litedb",
	// "mysqlnet", "pgnet".
	Invariant      string `toml:"invariant"`
	ConnectionString string `toml:"connection_string"`
	ReadOnly       bool   `toml:"read_only"`
	Trace          bool   `toml:"trace"`

	Encryption ApplicationEncryption `toml:"encryption"`
}

// Document is the top-level TOML document: a set of named connections.
type Document struct {
	Connections map[string]Connection `toml:"connections"`
}

// Load reads a TOML configuration file and returns its document.
func Load(path string) (*Document, error) {
	var doc Document
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &doc, nil
}

// Get resolves one named connection, failing loudly if absent.
func (d *Document) Get(name string) (Connection, error) {
	c, ok := d.Connections[name]
	if !ok {
		return Connection{}, fmt.Errorf("config: no connection named %q", name)
	}
	return c, nil
}

// DSN describes the parsed pieces of a network connection string, as
// returned by ParseConnectionString. The dialects' Open methods take the
// raw connection string and do not use a DSN.
type DSN struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	FilePath string // filedb/litedb only
}

// ParseConnectionString parses the connection-string part of a Connection
// (independent of scheme; the invariant already tells the caller which
// dialect to hand it to). Accepts "user:pass@host:port/dbname" for network
// engines or a bare path for file/in-process engines.
func ParseConnectionString(invariant, raw string) (DSN, error) {
	switch invariant {
	case "filedb", "litedb":
		return DSN{FilePath: raw}, nil
	case "mysqlnet", "pgnet":
		u, err := url.Parse("x://" + raw)
		if err != nil {
			return DSN{}, fmt.Errorf("config: invalid connection string: %w", err)
		}
		d := DSN{Host: u.Hostname(), Database: trimLeadingSlash(u.Path)}
		if u.User != nil {
			d.User = u.User.Username()
			d.Password, _ = u.User.Password()
		}
		if p := u.Port(); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				return DSN{}, fmt.Errorf("config: invalid port %q: %w", p, err)
			}
			d.Port = port
		}
		return d, nil
	default:
		return DSN{}, fmt.Errorf("config: unknown invariant %q", invariant)
	}
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}
