package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ddrkit/ddrsync/internal/lock"
	"github.com/ddrkit/ddrsync/internal/ui"
)

var lockCmd = &cobra.Command{
	Use:     "lock",
	GroupID: "repo",
	Short:   "Inspect or manage the repository lock",
	Long: `The repository lock is a marker file (.ddrsync.lock) in the repository
root. Imports take it for their whole run. It can also be held by hand,
for example around an external edit, with acquire and release.`,
}

var lockAcquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Take the lock and print the owner token",
	Run: func(cmd *cobra.Command, args []string) {
		owner, _ := cmd.Flags().GetString("owner")
		reason, _ := cmd.Flags().GetString("reason")
		if owner == "" {
			owner = cfg.Lock.Owner
		}
		if owner == "" {
			owner = lock.NewOwner()
		}

		st, err := repoLock().Acquire(owner, reason)
		if err != nil {
			fatalf("%s: %v", st, err)
		}
		fmt.Println(owner)
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release a lock held by --owner",
	Run: func(cmd *cobra.Command, args []string) {
		owner, _ := cmd.Flags().GetString("owner")
		if owner == "" {
			owner = cfg.Lock.Owner
		}
		if owner == "" {
			fatalf("--owner is required")
		}

		st, err := repoLock().Release(owner)
		if err != nil {
			fatalf("%s: %v", st, err)
		}
		switch st {
		case lock.StatusNotLocked:
			fmt.Printf("%s repository was not locked\n", ui.RenderWarn("⚠"))
		default:
			fmt.Printf("%s lock released\n", ui.RenderPass("✓"))
		}
	},
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds the lock",
	Run: func(cmd *cobra.Command, args []string) {
		l := repoLock()
		info, held, err := l.Peek()
		if err != nil {
			fatalf("%v", err)
		}
		if !held {
			fmt.Printf("%s %s is not locked\n", ui.RenderPass("✓"), cfg.Repo)
			return
		}
		printHolder(l.Path(), info)
	},
}

var lockBreakCmd = &cobra.Command{
	Use:   "break",
	Short: "Remove a lock left behind by a crashed process",
	Long: `Break removes the lock marker regardless of its owner. Use it only
when the holder is known to be gone; the marker is never removed
automatically. Asks for confirmation unless --yes is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		l := repoLock()
		info, held, err := l.Peek()
		if err != nil {
			fatalf("%v", err)
		}
		if !held {
			fmt.Printf("%s %s is not locked\n", ui.RenderPass("✓"), cfg.Repo)
			return
		}
		printHolder(l.Path(), info)

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			ok, err := ui.Confirm("Break this lock?", "The holder will fail when it tries to release it.")
			if err != nil {
				fatalf("%v", err)
			}
			if !ok {
				fmt.Println("Lock left in place.")
				return
			}
		}

		if _, _, err := l.Break(); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s lock broken\n", ui.RenderWarn("⚠"))
	},
}

func init() {
	lockAcquireCmd.Flags().String("owner", "", "owner token (default: config lock.owner or a fresh token)")
	lockAcquireCmd.Flags().String("reason", "manual", "why the lock is held")
	lockReleaseCmd.Flags().String("owner", "", "owner token given at acquire")
	lockBreakCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	lockCmd.AddCommand(lockAcquireCmd, lockReleaseCmd, lockStatusCmd, lockBreakCmd)
	rootCmd.AddCommand(lockCmd)
}

func repoLock() *lock.Lock {
	if info, err := os.Stat(cfg.Repo); err != nil || !info.IsDir() {
		fatalf("repository %s is not a directory", cfg.Repo)
	}
	return lock.New(cfg.Repo, logger.Named("lock"))
}

func printHolder(path string, info lock.Info) {
	fmt.Printf("%s locked (%s)\n", ui.RenderWarn("⚠"), path)
	fmt.Printf("   Owner:  %s\n", info.Owner)
	if info.Reason != "" {
		fmt.Printf("   Reason: %s\n", info.Reason)
	}
	if info.Host != "" {
		fmt.Printf("   Host:   %s (pid %d)\n", info.Host, info.PID)
	}
	if !info.CreatedAt.IsZero() {
		fmt.Printf("   Since:  %s\n", info.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
}
