package gitwire

import (
	"fmt"
	"strconv"
)

// FileMode is a git tree-entry mode, adapted from modules/git/tree.go's
// sIFMT/sIFREG/sIFDIR/sIFLNK/sIFGITLINK constants.
type FileMode uint32

const (
	ModeFile    FileMode = 0100644
	ModeExec    FileMode = 0100755
	ModeSymlink FileMode = 0120000
	ModeTree    FileMode = 0040000
	ModeGitlink FileMode = 0160000
)

func (m FileMode) String() string {
	return fmt.Sprintf("%06o", uint32(m))
}

// Type reports the object type this mode points at.
func (m FileMode) Type() string {
	switch m & 0170000 {
	case ModeTree:
		return "tree"
	case ModeGitlink:
		return "commit"
	default:
		return "blob"
	}
}

// TreeEntry is one line of a `git ls-tree`/`git mktree` listing.
type TreeEntry struct {
	Name string
	OID  string
	Mode FileMode
}

// Tree is the parsed entry list of a git tree object.
type Tree struct {
	OID     string
	Entries []TreeEntry
}

// Commit is the parsed contents of a git commit object, adapted from
// modules/git/commit.go's Commit struct.
type Commit struct {
	OID       string
	Tree      string
	Parents   []string
	Author    Signature
	Committer Signature
	Message   string
}

// Signature is a "name <email> timestamp tz" commit/tag actor line.
type Signature struct {
	Name  string
	Email string
	When  int64 // unix seconds
	TZ    string
}

func (s Signature) gitString() string {
	tz := s.TZ
	if tz == "" {
		tz = "+0000"
	}
	return fmt.Sprintf("%s <%s> %s %s", s.Name, s.Email, strconv.FormatInt(s.When, 10), tz)
}
