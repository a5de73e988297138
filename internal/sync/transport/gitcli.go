package transport

import (
	"context"

	"github.com/cairndb/cairn/internal/gitwire"
)

// Local is the `connection: none` remote: a plain filesystem or
// unauthenticated URL the git binary can reach without injected
// credentials (a bare repo on a shared filesystem, a local file:// path
// used in tests).
type Local struct{}

func (Local) Fetch(ctx context.Context, gitDir, remoteURL, refspec string) error {
	return gitwire.Fetch(ctx, gitDir, gitwire.FetchOpts{RemoteURL: remoteURL, RefSpec: refspec})
}

func (Local) Push(ctx context.Context, gitDir, remoteURL, refspec string, force bool) error {
	return gitwire.Push(ctx, gitDir, gitwire.PushOpts{RemoteURL: remoteURL, RefSpec: refspec, Force: force})
}

func (Local) Clone(ctx context.Context, remoteURL, dest string) error {
	return gitwire.Clone(ctx, remoteURL, dest, nil)
}
