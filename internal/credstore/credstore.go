// Package credstore stores the credentials behind spec §6's
// `connection ∈ {none|github{pat}|ssh{...}}` remote options in the
// platform keychain, rather than in cairn's own config.toml, so a
// personal access token or SSH passphrase never ends up in a file a
// collection's documents might accidentally be committed alongside.
//
// Trimmed/adapted from the teacher's modules/keyring: same Cred/Find/
// Store/Discard shape, same provider-per-build-tag structure
// (keyring_windows.go -> credstore_windows.go via
// github.com/danieljoos/wincred, keyring_unix.go's Secret Service client
// -> credstore_linux.go via github.com/godbus/dbus/v5), collapsed to the
// two concrete backends cairn's go.mod keeps plus a fallback for
// everything else.
package credstore

import (
	"context"
	"errors"
	"runtime"
)

// ErrNotFound is returned when no credential is stored for a target.
var ErrNotFound = errors.New("credstore: credential not found")

// ErrUnsupportedPlatform is returned by the fallback provider used on any
// OS without a concrete keychain backend wired in this package.
var ErrUnsupportedPlatform = errors.New("credstore: unsupported platform: " + runtime.GOOS)

// ErrSetDataTooBig mirrors the teacher's keyring.ErrSetDataTooBig: some
// backends (Windows Credential Manager) cap target/username/secret sizes.
var ErrSetDataTooBig = errors.New("credstore: credential data too large for backend")

// Cred is a username/secret pair, covering both a PAT (secret carries the
// token, UserName often the account login) and an SSH key passphrase
// (UserName empty, secret is the passphrase).
type Cred struct {
	UserName string
	Secret   string
}

// Provider is the pluggable keychain backend.
type Provider interface {
	Find(ctx context.Context, target string) (*Cred, error)
	Store(ctx context.Context, target string, c *Cred) error
	Discard(ctx context.Context, target string) error
}

// provider is set by the platform-specific init() in credstore_windows.go
// / credstore_linux.go; any other GOOS keeps the fallback.
var provider Provider = fallbackProvider{}

// Find looks up the credential stored for target (conventionally
// "cairn:<remoteName>").
func Find(ctx context.Context, target string) (*Cred, error) {
	return provider.Find(ctx, target)
}

// Store saves (overwriting) the credential for target.
func Store(ctx context.Context, target string, c *Cred) error {
	return provider.Store(ctx, target, c)
}

// Discard removes any credential stored for target.
func Discard(ctx context.Context, target string) error {
	return provider.Discard(ctx, target)
}

type fallbackProvider struct{}

func (fallbackProvider) Find(ctx context.Context, target string) (*Cred, error) {
	return nil, ErrUnsupportedPlatform
}

func (fallbackProvider) Store(ctx context.Context, target string, c *Cred) error {
	return ErrUnsupportedPlatform
}

func (fallbackProvider) Discard(ctx context.Context, target string) error {
	return ErrUnsupportedPlatform
}
