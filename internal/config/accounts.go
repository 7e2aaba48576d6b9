package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrNoAccount is returned when no section of the account file matches.
var ErrNoAccount = errors.New("no account found")

// Account holds the credentials for one service.
type Account struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Accounts is the parsed account file. Sections are named after the store
// kind, optionally followed by a sub name:
//
//	[default]
//	username = "me"
//
//	[postgres]
//	password = "secret"
//
//	[postgres.work]
//	username = "office"
type Accounts struct {
	sections map[string]any
}

// LoadAccounts parses the TOML file at path. A missing file yields an empty
// set of accounts.
func LoadAccounts(path string) (*Accounts, error) {
	a := &Accounts{sections: make(map[string]any)}
	if path == "" {
		return a, nil
	}
	if _, err := toml.DecodeFile(path, &a.sections); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return a, nil
		}
		return nil, fmt.Errorf("failed to parse account file %s: %w", path, err)
	}
	return a, nil
}

// ParseAccounts parses TOML account data.
func ParseAccounts(data string) (*Accounts, error) {
	a := &Accounts{sections: make(map[string]any)}
	if _, err := toml.Decode(data, &a.sections); err != nil {
		return nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return a, nil
}

// Lookup returns the account for kind and sub. The sections [kind.sub],
// [kind] and [default] are tried in that order. Each field is taken from
// the most specific section that sets it.
func (a *Accounts) Lookup(kind, sub string) (Account, error) {
	var candidates []map[string]any
	if table, ok := a.sections[kind].(map[string]any); ok {
		if sub != "" {
			if subTable, ok := table[sub].(map[string]any); ok {
				candidates = append(candidates, subTable)
			}
		}
		candidates = append(candidates, table)
	}
	if table, ok := a.sections["default"].(map[string]any); ok {
		candidates = append(candidates, table)
	}

	var acc Account
	found := false
	for _, table := range candidates {
		if acc.Username == "" {
			if v, ok := table["username"].(string); ok {
				acc.Username = v
				found = true
			}
		}
		if acc.Password == "" {
			if v, ok := table["password"].(string); ok {
				acc.Password = v
				found = true
			}
		}
	}
	if !found {
		return Account{}, fmt.Errorf("%w for %s", ErrNoAccount, strings.Trim(kind+"."+sub, "."))
	}
	return acc, nil
}
