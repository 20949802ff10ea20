package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/oxen-vcs/oxen-core/internal/repo"
	"github.com/oxen-vcs/oxen-core/internal/termcolor"
)

func runBranch(r *repo.Repository, args []string, cw *termcolor.Writer) int {
	for i := 0; i < len(args); i++ {
		if args[i] == "-d" || args[i] == "--delete" {
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "usage: oxen branch -d <name>")
				return 1
			}
			if err := r.DeleteBranch(args[i+1]); err != nil {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				return 128
			}
			return 0
		}
	}

	if len(args) > 0 {
		if err := r.CreateBranch(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		return 0
	}

	names, err := r.ListBranches()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	sort.Strings(names)

	current, _, _ := r.CurrentBranch()
	for _, name := range names {
		if name == current {
			fmt.Printf("* %s\n", cw.Green(name))
		} else {
			fmt.Printf("  %s\n", name)
		}
	}
	return 0
}
