// Package transport implements the remote engine adapter (spec §4.K):
// an abstract fetch/push/clone surface plus concrete authentication
// types layered on top of internal/gitwire's git-binary plumbing.
//
// Grounded on the teacher's transport layer configuring the real git
// binary's own auth hooks (GIT_ASKPASS, GIT_SSH_COMMAND) rather than
// reimplementing smart-HTTP or the SSH wire protocol -- no pack library
// does either better than the git binary itself, so internal/gitwire
// stays the execution substrate and this package only adds the
// environment/credential-injection layer the teacher's own transport
// glue provides.
package transport

import "context"

// Remote is the single operation surface every authentication type
// implements: fetch a remote-tracking ref, push a local ref, or clone a
// fresh working copy.
type Remote interface {
	Fetch(ctx context.Context, gitDir, remoteURL, refspec string) error
	Push(ctx context.Context, gitDir, remoteURL, refspec string, force bool) error
	Clone(ctx context.Context, remoteURL, dest string) error
}

// Connection selects which concrete Remote a database's remote config
// resolves to, mirroring dbconfig.Remote.Connection ("", "https", "ssh").
type Connection string

const (
	ConnectionNone  Connection = ""
	ConnectionHTTPS Connection = "https"
	ConnectionSSH   Connection = "ssh"
)
