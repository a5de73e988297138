// Package gitwire shells out to the real git binary to give cairn an
// actual, interoperable Git object database and ref store: every write
// cairn makes is readable by any ordinary git client, and every remote
// cairn syncs against is an ordinary git remote.
//
// Process supervision (Exec/OneLine/Pipe, the capped stderr buffer) is
// adapted from the teacher's modules/command package. Command shaping
// (git --git-dir <dir> <args>...) is adapted from modules/git/command.go
// and modules/git/repo.go. Unlike the teacher, cairn never uses its own
// zeta object format or blake3 hashing here -- those are a bespoke,
// non-git-compatible store, and spec §1 requires plain interoperable git.
package gitwire

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// prefixSuffixSaver caps captured stderr the same way modules/command does,
// so a runaway git process can't OOM the caller via error text.
type prefixSuffixSaver struct {
	N      int
	prefix []byte
	suffix []byte
	off    int
	skip   int64
}

func (w *prefixSuffixSaver) Write(p []byte) (int, error) {
	lenp := len(p)
	p = w.fill(&w.prefix, p)
	if overage := len(p) - w.N; overage > 0 {
		p = p[overage:]
		w.skip += int64(overage)
	}
	p = w.fill(&w.suffix, p)
	for len(p) > 0 {
		n := copy(w.suffix[w.off:], p)
		p = p[n:]
		w.skip += int64(n)
		w.off += n
		if w.off == w.N {
			w.off = 0
		}
	}
	return lenp, nil
}

func (w *prefixSuffixSaver) fill(dst *[]byte, p []byte) []byte {
	if remain := w.N - len(*dst); remain > 0 {
		add := len(p)
		if add > remain {
			add = remain
		}
		*dst = append(*dst, p[:add]...)
		p = p[add:]
	}
	return p
}

func (w *prefixSuffixSaver) Bytes() []byte {
	if w.suffix == nil {
		return w.prefix
	}
	if w.skip == 0 {
		return append(w.prefix, w.suffix...)
	}
	var buf bytes.Buffer
	buf.Write(w.prefix)
	buf.WriteString("\n... omitting ")
	buf.WriteString(strconv.FormatInt(w.skip, 10))
	buf.WriteString(" bytes ...\n")
	buf.Write(w.suffix[w.off:])
	buf.Write(w.suffix[:w.off])
	return buf.Bytes()
}

// Runner shells individual git subcommands against one git-dir.
type Runner struct {
	GitDir string
	WorkTree string
	Env    []string // extra environment entries, appended to os.Environ()
}

// Exec runs `git <args...>` against r.GitDir (and r.WorkTree, when set),
// returning combined stdout with stderr captured for error reporting.
func (r *Runner) Exec(ctx context.Context, args ...string) ([]byte, error) {
	full := make([]string, 0, len(args)+4)
	if r.GitDir != "" {
		full = append(full, "--git-dir", r.GitDir)
	}
	if r.WorkTree != "" {
		full = append(full, "--work-tree", r.WorkTree)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, "git", full...)
	if len(r.Env) != 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	var stdout bytes.Buffer
	stderr := &prefixSuffixSaver{N: 32 << 10}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("gitwire: git %s: %w: %s", strings.Join(args, " "), err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// OneLine runs args and returns the single trimmed line of stdout.
func (r *Runner) OneLine(ctx context.Context, args ...string) (string, error) {
	out, err := r.Exec(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Pipe runs args, feeding stdin to the process and returning stdout.
func (r *Runner) Pipe(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	full := make([]string, 0, len(args)+2)
	if r.GitDir != "" {
		full = append(full, "--git-dir", r.GitDir)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, "git", full...)
	if len(r.Env) != 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout bytes.Buffer
	stderr := &prefixSuffixSaver{N: 32 << 10}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("gitwire: git %s: %w: %s", strings.Join(args, " "), err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}
