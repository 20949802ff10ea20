package main

import (
	"fmt"
	"os"

	"github.com/oxen-vcs/oxen-core/internal/repo"
)

func runAdd(r *repo.Repository, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: oxen add <path>")
		return 1
	}
	for _, path := range args {
		if err := r.Add(path); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
	}
	return 0
}

func runRemove(r *repo.Repository, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: oxen rm <path>")
		return 1
	}
	for _, path := range args {
		if err := r.Remove(path); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
	}
	return 0
}
