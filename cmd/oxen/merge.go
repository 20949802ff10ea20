package main

import (
	"fmt"
	"os"

	"github.com/oxen-vcs/oxen-core/internal/merge"
	"github.com/oxen-vcs/oxen-core/internal/repo"
)

func runMerge(r *repo.Repository, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: oxen merge <branch-or-commit>")
		return 1
	}

	theirs, err := resolveRev(r, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	result, err := r.Merge(theirs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	switch result.Outcome {
	case merge.OutcomeUpToDate:
		fmt.Println("Already up to date.")
	case merge.OutcomeFastForward:
		fmt.Println("Fast-forward.")
	case merge.OutcomeThreeWay:
		if len(result.Conflicts) > 0 {
			fmt.Println("Automatic merge failed; fix conflicts and commit:")
			for _, c := range result.Conflicts {
				fmt.Printf("\tboth modified:   %s\n", c)
			}
			return 1
		}
		fmt.Println("Merge complete; review and commit.")
	}
	return 0
}
