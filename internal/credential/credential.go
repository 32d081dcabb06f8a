package credential

import (
	"fmt"
	"strings"

	"github.com/99designs/keyring"
	"github.com/containeroo/resolver"
)

// KeyringPrefix marks a value that is looked up in the OS keyring.
const KeyringPrefix = "keyring:"

// Resolver turns credential references from the config file into secrets.
// Supported forms are "keyring:<key>" and everything containeroo/resolver understands
// ("env:NAME", "file:/path", plain values).
type Resolver struct {
	// Keyring is opened on first use when nil.
	Keyring keyring.Keyring
}

// Resolve returns the secret behind ref. An empty ref resolves to "".
func (r *Resolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}

	if key, ok := strings.CutPrefix(ref, KeyringPrefix); ok {
		return r.fromKeyring(key)
	}

	val, err := resolver.ResolveVariable(ref)
	if err != nil {
		return "", fmt.Errorf("resolve credential: %w", err)
	}
	return strings.TrimSpace(val), nil
}

// fromKeyring reads key from the keyring.
func (r *Resolver) fromKeyring(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty keyring key")
	}
	if r.Keyring == nil {
		ring, err := openKeyring()
		if err != nil {
			return "", err
		}
		r.Keyring = ring
	}

	item, err := r.Keyring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}
