// Package git provides a git implementation of the vcs.VCS interface.
// It registers itself with the vcs registry on import:
//
//	import _ "github.com/ddrkit/ddrsync/internal/vcs/git"
package git

import "github.com/ddrkit/ddrsync/internal/vcs"

func init() {
	vcs.Register(vcs.TypeGit, func(path string) (vcs.VCS, error) {
		return New(path)
	})
}
