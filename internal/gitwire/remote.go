// Remote operations backing the sync engine's remote-engine adapter
// (spec §4.K): fetch, push, and ls-remote against a registered git
// remote URL. Authentication is injected via environment variables the
// same way the teacher's transport layer configures GIT_ASKPASS/
// GIT_SSH_COMMAND for non-interactive auth.
package gitwire

import (
	"context"
	"fmt"
	"strings"
)

// FetchOpts configures a single Fetch call.
type FetchOpts struct {
	RemoteURL string
	RefSpec   string // e.g. "refs/heads/main:refs/remotes/origin/main"
	Env       []string
}

// Fetch runs `git fetch <url> <refspec>`. It reports only success or
// failure; callers resolve the fetched ref themselves.
func Fetch(ctx context.Context, gitDir string, opts FetchOpts) error {
	r := &Runner{GitDir: gitDir, Env: opts.Env}
	args := []string{"fetch", "--no-tags", opts.RemoteURL}
	if opts.RefSpec != "" {
		args = append(args, opts.RefSpec)
	}
	if _, err := r.Exec(ctx, args...); err != nil {
		return fmt.Errorf("gitwire: fetch %s: %w", opts.RemoteURL, err)
	}
	return nil
}

// PushOpts configures a single Push call.
type PushOpts struct {
	RemoteURL string
	RefSpec   string
	Force     bool
	Env       []string
}

// Push runs `git push <url> <refspec>`.
func Push(ctx context.Context, gitDir string, opts PushOpts) error {
	r := &Runner{GitDir: gitDir, Env: opts.Env}
	args := []string{"push", opts.RemoteURL}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, opts.RefSpec)
	if _, err := r.Exec(ctx, args...); err != nil {
		return fmt.Errorf("gitwire: push %s: %w", opts.RemoteURL, err)
	}
	return nil
}

// LsRemote returns the OID of ref on the given remote, or "" if the
// remote has no such ref (an empty/unborn repository, most commonly).
func LsRemote(ctx context.Context, gitDir, remoteURL, ref string, env []string) (string, error) {
	r := &Runner{GitDir: gitDir, Env: env}
	out, err := r.Exec(ctx, "ls-remote", remoteURL, ref)
	if err != nil {
		return "", fmt.Errorf("gitwire: ls-remote %s: %w", remoteURL, err)
	}
	line := strings.TrimSpace(string(out))
	if line == "" {
		return "", nil
	}
	fields := strings.Fields(line)
	return fields[0], nil
}

// Clone runs `git clone --bare` to materialize a new local database from
// a remote URL, used by the collection façade's Open-by-clone path.
func Clone(ctx context.Context, remoteURL, dest string, env []string) error {
	r := &Runner{Env: env}
	if _, err := r.Exec(ctx, "clone", "--bare", remoteURL, dest); err != nil {
		return fmt.Errorf("gitwire: clone %s: %w", remoteURL, err)
	}
	return nil
}
