// RefUpdater is adapted near-verbatim from modules/git/updateref.go, which
// itself notes its MIT-licensed GitLab origin. The state machine (idle ->
// started -> prepared -> idle) and the `git update-ref -z --stdin`
// protocol (start/update/prepare/commit NUL-delimited commands, "<cmd>:
// ok\n" acks) are unchanged; only the RepoPath/environ plumbing is
// rewired onto gitwire.Runner instead of modules/command.Command.
package gitwire

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

var errUpdaterClosed = errors.New("gitwire: ref updater closed")

const ZeroOID = "0000000000000000000000000000000000000000"

type updaterState string

const (
	stateIdle     updaterState = "idle"
	stateStarted  updaterState = "started"
	statePrepared updaterState = "prepared"
)

// RefUpdater drives a long-lived `git update-ref -z --stdin` process for
// atomic multi-ref transactions (used by the sync engine's fast-forward
// and merge-commit application).
type RefUpdater struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	reader   *bufio.Reader
	stderr   *bytes.Buffer
	ctx      context.Context
	closeErr error
	state    updaterState
}

// NewRefUpdater starts the update-ref process against gitDir.
func NewRefUpdater(ctx context.Context, gitDir string) (*RefUpdater, error) {
	cmd := exec.CommandContext(ctx, "git", "--git-dir", gitDir, "update-ref", "-z", "--stdin")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, err
	}
	return &RefUpdater{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: &stderr,
		reader: bufio.NewReader(stdout),
		ctx:    ctx,
		state:  stateIdle,
	}, nil
}

func (u *RefUpdater) expectState(expected updaterState) error {
	if u.closeErr != nil {
		return u.closeErr
	}
	if u.state != expected {
		return u.closeWithError(fmt.Errorf("gitwire: expected ref-updater state %q, got %q", expected, u.state))
	}
	return nil
}

// Start begins a new transaction.
func (u *RefUpdater) Start() error {
	if err := u.expectState(stateIdle); err != nil {
		return err
	}
	u.state = stateStarted
	return u.setState("start")
}

// Update stages reference to move to newOID, contingent on its current
// value matching oldOID (empty oldOID skips the check).
func (u *RefUpdater) Update(reference, newOID, oldOID string) error {
	if err := u.expectState(stateStarted); err != nil {
		return err
	}
	return u.write("update %s\x00%s\x00%s\x00", reference, newOID, oldOID)
}

// Create stages reference to be created at oid; it must not already exist.
func (u *RefUpdater) Create(reference, oid string) error {
	return u.Update(reference, oid, ZeroOID)
}

// Delete stages reference for removal, ignoring its current value.
func (u *RefUpdater) Delete(reference string) error {
	return u.Update(reference, ZeroOID, "")
}

// Prepare locks all staged references ahead of Commit. Optional.
func (u *RefUpdater) Prepare() error {
	if err := u.expectState(stateStarted); err != nil {
		return err
	}
	u.state = statePrepared
	return u.setState("prepare")
}

// Commit applies every staged change atomically.
func (u *RefUpdater) Commit() error {
	if u.state != statePrepared {
		if err := u.expectState(stateStarted); err != nil {
			return err
		}
	}
	u.state = stateIdle
	return u.setState("commit")
}

// Close aborts any open transaction and releases the underlying process.
func (u *RefUpdater) Close() error {
	return u.closeWithError(nil)
}

func (u *RefUpdater) write(format string, args ...any) error {
	if _, err := fmt.Fprintf(u.stdin, format, args...); err != nil {
		return u.closeWithError(err)
	}
	return nil
}

func (u *RefUpdater) setState(cmd string) error {
	if err := u.write("%s\x00", cmd); err != nil {
		return err
	}
	line, err := u.reader.ReadString('\n')
	if err != nil {
		return u.closeWithError(fmt.Errorf("gitwire: update-ref %q failed: %w", cmd, err))
	}
	if line != cmd+": ok\n" {
		return u.closeWithError(fmt.Errorf("gitwire: update-ref %q not ok: %q (stderr: %s)", cmd, line, u.stderr.String()))
	}
	return nil
}

func (u *RefUpdater) closeWithError(closeErr error) error {
	if u.closeErr != nil {
		return u.closeErr
	}
	if u.stdin != nil {
		_ = u.stdin.Close()
	}
	if u.stdout != nil {
		_ = u.stdout.Close()
	}
	if err := u.cmd.Wait(); err != nil {
		u.closeErr = fmt.Errorf("gitwire: update-ref exited: %w (stderr: %s)", err, u.stderr.String())
		return u.closeErr
	}
	if closeErr != nil {
		u.closeErr = closeErr
		return closeErr
	}
	u.closeErr = errUpdaterClosed
	return nil
}
