package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/eldtechnologies/noffer/internal/noffer"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Alias maps a username to the offer that pays it.
type Alias struct {
	NIP69       string `json:"nip69"`
	NostrPubkey string `json:"nostrPubkey,omitempty"`

	Pointer *noffer.Pointer `json:"-"`
}

// Directory maps usernames to the offers served by the LNURL endpoints.
type Directory struct {
	Domain  string           `json:"domain"`
	Aliases map[string]Alias `json:"aliases"`
}

// LoadDirectory reads and validates the JSON alias file at path. A non-empty
// domain overrides the file's.
func LoadDirectory(path, domain string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDirectory(data, domain)
}

// ParseDirectory validates every alias once: usernames must be word
// characters and every offer must decode.
func ParseDirectory(data []byte, domain string) (*Directory, error) {
	var d Directory
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse alias directory: %w", err)
	}
	if domain != "" {
		d.Domain = domain
	}
	if d.Domain == "" {
		return nil, errors.New("alias directory: domain is required")
	}

	for name, alias := range d.Aliases {
		if !usernameRegex.MatchString(name) {
			return nil, fmt.Errorf("alias %q: username must match %s", name, usernameRegex)
		}
		p, err := noffer.Decode(alias.NIP69)
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", name, err)
		}
		if alias.NostrPubkey != "" {
			if b, err := hex.DecodeString(alias.NostrPubkey); err != nil || len(b) != 32 {
				return nil, fmt.Errorf("alias %q: nostrPubkey must be 64 hex characters", name)
			}
		}
		alias.Pointer = p
		d.Aliases[name] = alias
	}
	return &d, nil
}

// Lookup returns the alias for username.
func (d *Directory) Lookup(username string) (Alias, bool) {
	a, ok := d.Aliases[username]
	return a, ok
}
