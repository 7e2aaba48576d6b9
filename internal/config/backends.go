package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gpxity/gpxity/internal/backend"
)

// BackendSpec is a fully resolved backend address.
type BackendSpec struct {
	Name     string
	Kind     string
	Location backend.Location
	Cleanup  bool
}

// Resolve turns a command line backend argument into a BackendSpec. The
// argument is either a name from the Backends section or kind:location,
// e.g. directory:~/gpx. A bare kind uses the kind's default location.
// Credentials are looked up in the account file.
func (c *Config) Resolve(arg string) (BackendSpec, error) {
	spec := BackendSpec{Name: arg}
	account := ""
	if bc, ok := c.Backends[arg]; ok {
		spec.Kind = bc.Kind
		spec.Location = backend.Location{Path: bc.Path, Options: bc.Options}
		spec.Cleanup = bc.Cleanup
		account = bc.Account
	} else {
		kind, path, _ := strings.Cut(arg, ":")
		spec.Kind = kind
		spec.Location = backend.Location{Path: path}
	}
	if spec.Kind == "" {
		return BackendSpec{}, fmt.Errorf("backend %q has no kind", arg)
	}
	if !backend.IsRegistered(spec.Kind) {
		return BackendSpec{}, fmt.Errorf("%w: %s (registered: %s)", backend.ErrUnknownKind,
			spec.Kind, strings.Join(backend.RegisteredKinds(), ", "))
	}

	accounts, err := LoadAccounts(c.Accounts)
	if err != nil {
		return BackendSpec{}, err
	}
	acc, err := accounts.Lookup(spec.Kind, account)
	if err != nil && !errors.Is(err, ErrNoAccount) {
		return BackendSpec{}, err
	}
	spec.Location.Username = acc.Username
	spec.Location.Password = acc.Password
	return spec, nil
}

// Open resolves arg and opens the backend.
func (c *Config) Open(arg string, opts ...backend.Option) (*backend.Backend, error) {
	spec, err := c.Resolve(arg)
	if err != nil {
		return nil, err
	}
	store, err := backend.NewStore(spec.Kind, spec.Location)
	if err != nil {
		return nil, err
	}
	opts = append([]backend.Option{backend.WithCleanup(spec.Cleanup)}, opts...)
	b, err := backend.Open(store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return b, nil
}
