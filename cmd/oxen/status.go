package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/fsnotify/fsnotify"

	"github.com/oxen-vcs/oxen-core/internal/repo"
	"github.com/oxen-vcs/oxen-core/internal/termcolor"
)

func runStatus(r *repo.Repository, args []string, cw *termcolor.Writer) int {
	porcelain := false
	watch := false
	for _, arg := range args {
		switch arg {
		case "-s", "--porcelain":
			porcelain = true
		case "--watch":
			watch = true
		}
	}

	if watch {
		return watchStatus(r, porcelain)
	}

	return printStatus(r, porcelain)
}

func printStatus(r *repo.Repository, porcelain bool) int {
	entries, err := r.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	if porcelain {
		for _, e := range entries {
			fmt.Printf("%c %s\n", statusCode(e.Status), e.Path)
		}
		return 0
	}

	branch, attached, _ := r.CurrentBranch()
	if attached {
		fmt.Printf("On branch %s\n", branch)
	} else {
		fmt.Println("HEAD detached")
	}

	if len(entries) == 0 {
		fmt.Println("nothing to commit, working tree clean")
		return 0
	}

	for _, e := range entries {
		fmt.Printf("\t%s\t%s\n", statusLabel(e.Status), e.Path)
	}
	return 0
}

func statusCode(s repo.FileStatus) byte {
	switch s {
	case repo.WTStaged:
		return 'A'
	case repo.WTModified:
		return 'M'
	case repo.WTUntracked:
		return '?'
	case repo.WTMissing:
		return 'D'
	default:
		return ' '
	}
}

func statusLabel(s repo.FileStatus) string {
	switch s {
	case repo.WTStaged:
		return "staged:    "
	case repo.WTModified:
		return "modified:  "
	case repo.WTUntracked:
		return "untracked: "
	case repo.WTMissing:
		return "missing:   "
	default:
		return "           "
	}
}

// watchStatus re-renders `oxen status` each time the working tree changes,
// driven by fsnotify events rather than polling (internal/repo has no
// native change-notification hook of its own).
func watchStatus(r *repo.Repository, porcelain bool) int {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	defer watcher.Close()

	if err := addWatchTree(watcher, r.WorkDir(), r.DotDir()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	fmt.Fprintln(os.Stderr, "watching for changes (ctrl-c to stop)...")
	printStatus(r, porcelain)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return 0
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			fmt.Print("\033[H\033[2J")
			printStatus(r, porcelain)
		case err, ok := <-watcher.Errors:
			if !ok {
				return 0
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

// addWatchTree registers every directory under workDir except dotDir, since
// fsnotify watches are non-recursive and the lock/object-store churn inside
// .oxen would otherwise trigger a re-render storm on every commit.
func addWatchTree(watcher *fsnotify.Watcher, workDir, dotDir string) error {
	return filepathWalkDirSkippingDot(workDir, dotDir, watcher.Add)
}
