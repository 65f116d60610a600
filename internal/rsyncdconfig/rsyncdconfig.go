// Package rsyncdconfig loads the TOML configuration file that drives
// gokr-rsyncd's daemon mode: the listeners to bind and the modules to
// export, mirroring the structure (if not the syntax) of stock
// rsync's /etc/rsyncd.conf.
package rsyncdconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/oferchen/rsync-sub002/rsyncd"
)

// defaultPaths are tried, in order, by FromDefaultFiles.
var defaultPaths = []string{
	"/etc/gokr-rsyncd.toml",
	"/etc/gokrazy/rsync/gokr-rsyncd.toml",
}

// AuthorizedSSH configures an authorized-key SSH listener. The
// listener (internal/anonssh) does not authenticate clients: keys in
// AuthorizedKeys are not checked against connecting clients.
type AuthorizedSSH struct {
	Address        string `toml:"address"`
	AuthorizedKeys string `toml:"authorized_keys"`
}

// Listener describes one bind address. Precisely one of Rsyncd,
// AnonSSH or AuthorizedSSH.Address should be set: Rsyncd speaks the
// plain rsync:// daemon protocol; AnonSSH and AuthorizedSSH both serve
// the same protocol through internal/anonssh's unauthenticated raw TCP
// shim, and AuthorizedSSH's AuthorizedKeys are not checked.
type Listener struct {
	Rsyncd        string        `toml:"rsyncd"`
	AnonSSH       string        `toml:"anon_ssh"`
	AuthorizedSSH AuthorizedSSH `toml:"authorized_ssh"`
}

// Config is the root of a gokr-rsyncd.toml file.
type Config struct {
	Listeners []Listener      `toml:"listener"`
	Modules   []rsyncd.Module `toml:"module"`

	// DontNamespace disables privilege dropping and filesystem
	// restriction. Only permitted together with authorized_ssh
	// listeners; maincmd.Main enforces that pairing. The authorized_ssh
	// listener is served in-process by internal/anonssh, which does not
	// authenticate clients.
	DontNamespace bool `toml:"dont_namespace"`
}

// FromFile parses the TOML configuration file at path.
func FromFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Modules {
		if cfg.Modules[i].Name == "" {
			return nil, fmt.Errorf("%s: module %d has no name", path, i)
		}
	}
	return &cfg, nil
}

// FromDefaultFiles tries each well-known configuration file path in
// turn, returning the first one found. The returned path is the one
// that was loaded; when none exist, the *os.PathError from the last
// attempt is returned so callers can check os.IsNotExist.
func FromDefaultFiles() (*Config, string, error) {
	var lastErr error
	for _, path := range defaultPaths {
		cfg, err := FromFile(path)
		if err == nil {
			return cfg, path, nil
		}
		if !os.IsNotExist(err) {
			return nil, path, err
		}
		lastErr = err
	}
	return nil, "", lastErr
}
