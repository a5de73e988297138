package transport

import (
	"context"
	"fmt"
	"os"

	"github.com/cairndb/cairn/internal/credstore"
	"github.com/cairndb/cairn/internal/gitwire"
)

// PAT authenticates HTTPS remotes with a personal access token, stored
// in the platform keychain under CredentialTarget and injected via
// GIT_ASKPASS -- the same non-interactive credential-prompt hook the
// teacher's own transport layer configures, rather than embedding the
// token in the remote URL where it would end up in shell history and
// `git config -l` output.
type PAT struct {
	// CredentialTarget names the credstore entry holding the token
	// (conventionally "cairn:<remoteName>").
	CredentialTarget string
}

func (p PAT) env(ctx context.Context) ([]string, func(), error) {
	cred, err := credstore.Find(ctx, p.CredentialTarget)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: pat: %w", err)
	}
	script, cleanup, err := writeAskpassScript(cred.Secret)
	if err != nil {
		return nil, nil, err
	}
	return []string{"GIT_ASKPASS=" + script, "GIT_TERMINAL_PROMPT=0"}, cleanup, nil
}

func (p PAT) Fetch(ctx context.Context, gitDir, remoteURL, refspec string) error {
	env, cleanup, err := p.env(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return gitwire.Fetch(ctx, gitDir, gitwire.FetchOpts{RemoteURL: remoteURL, RefSpec: refspec, Env: env})
}

func (p PAT) Push(ctx context.Context, gitDir, remoteURL, refspec string, force bool) error {
	env, cleanup, err := p.env(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return gitwire.Push(ctx, gitDir, gitwire.PushOpts{RemoteURL: remoteURL, RefSpec: refspec, Force: force, Env: env})
}

func (p PAT) Clone(ctx context.Context, remoteURL, dest string) error {
	env, cleanup, err := p.env(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return gitwire.Clone(ctx, remoteURL, dest, env)
}

// writeAskpassScript materializes a throwaway executable that prints
// secret and exits, suitable for GIT_ASKPASS. The token never touches
// argv or an environment variable git itself echoes back.
func writeAskpassScript(secret string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "cairn-askpass-*.sh")
	if err != nil {
		return "", nil, fmt.Errorf("transport: askpass: %w", err)
	}
	script := fmt.Sprintf("#!/bin/sh\nprintf '%%s' '%s'\n", shellEscape(secret))
	if _, err := f.WriteString(script); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("transport: askpass: %w", err)
	}
	f.Close()
	if err := os.Chmod(f.Name(), 0o700); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("transport: askpass: %w", err)
	}
	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}

func shellEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\\', '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
