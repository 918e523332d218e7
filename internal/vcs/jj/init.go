// Package jj provides a Jujutsu (jj) implementation of the vcs.VCS interface.
//
// jj has no staging area: the working copy is itself a change, so Add is a
// no-op and Commit splits the listed paths off into their own change with
// `jj commit`. Colocated repositories (.jj next to .git) report
// vcs.TypeColocate.
//
//	import _ "github.com/ddrkit/ddrsync/internal/vcs/jj"
package jj

import "github.com/ddrkit/ddrsync/internal/vcs"

func init() {
	vcs.Register(vcs.TypeJJ, func(path string) (vcs.VCS, error) {
		return New(path)
	})
}
