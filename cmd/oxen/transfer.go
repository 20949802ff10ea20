package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/client"
	"github.com/oxen-vcs/oxen-core/internal/progress"
	"github.com/oxen-vcs/oxen-core/internal/repo"
)

const remoteCallTimeout = 2 * time.Minute

// remoteArgs splits the shared [<remote>] [<branch>] trailing args that
// fetch/pull/push all accept, defaulting remote to Config.DefaultRemote and
// branch to the current branch.
func remoteArgs(r *repo.Repository, args []string) (remoteName, branchName string, err error) {
	remoteName = r.Config.DefaultRemote
	branchName, _, err = r.CurrentBranch()
	if err != nil {
		return "", "", err
	}

	if len(args) > 0 {
		remoteName = args[0]
	}
	if len(args) > 1 {
		branchName = args[1]
	}
	if remoteName == "" {
		return "", "", fmt.Errorf("no remote configured; run 'oxen remote add <name> <url>'")
	}
	if branchName == "" {
		return "", "", fmt.Errorf("HEAD is detached; specify a branch")
	}
	return remoteName, branchName, nil
}

func resolveRemote(r *repo.Repository, name string) (*client.Remote, error) {
	cfg, ok := r.Config.GetRemote(name)
	if !ok {
		return nil, fmt.Errorf("unknown remote %q", name)
	}
	return client.NewRemote(cfg.URL)
}

func runFetch(r *repo.Repository, args []string) int {
	remoteName, branchName, err := remoteArgs(r, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	rem, err := resolveRemote(r, remoteName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteCallTimeout)
	defer cancel()

	result, err := client.Fetch(ctx, r, rem, branchName, client.FetchOptions{
		Depth:    r.Config.Depth,
		Reporter: progress.NewBarReporter(1, 0),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	if result.AlreadyUpToDate {
		fmt.Println("Already up to date.")
		return 0
	}
	fmt.Printf("Fetched %s to %s/%s\n", result.RemoteCommit.Short(8), remoteName, branchName)
	return 0
}

func runPull(r *repo.Repository, args []string) int {
	remoteName, branchName, err := remoteArgs(r, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	rem, err := resolveRemote(r, remoteName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteCallTimeout)
	defer cancel()

	result, err := client.Pull(ctx, r, rem, branchName, client.FetchOptions{
		Depth:    r.Config.Depth,
		Reporter: progress.NewBarReporter(1, 0),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	if result.Fetch.AlreadyUpToDate {
		fmt.Println("Already up to date.")
		return 0
	}
	if len(result.Merge.Conflicts) > 0 {
		fmt.Println("Automatic merge failed; fix conflicts and commit:")
		for _, c := range result.Merge.Conflicts {
			fmt.Printf("\tboth modified:   %s\n", c)
		}
		return 1
	}
	fmt.Printf("Updated %s to %s\n", branchName, result.Fetch.RemoteCommit.Short(8))
	return 0
}

func runPush(r *repo.Repository, args []string) int {
	remoteName, branchName, err := remoteArgs(r, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	rem, err := resolveRemote(r, remoteName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteCallTimeout)
	defer cancel()

	result, err := client.Push(ctx, r, rem, branchName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	fmt.Printf("Pushed %d commit(s) to %s/%s (%s)\n", result.CommitCount, remoteName, branchName, result.PushedCommit.Short(8))
	return 0
}
