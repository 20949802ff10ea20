package main

import (
	"fmt"
	"os"

	"github.com/oxen-vcs/oxen-core/internal/repo"
)

func runCheckout(r *repo.Repository, args []string) int {
	force := false
	detach := false
	target := ""

	for _, arg := range args {
		switch arg {
		case "--force", "-f":
			force = true
		case "--detach":
			detach = true
		default:
			target = arg
		}
	}

	if target == "" {
		fmt.Fprintln(os.Stderr, "usage: oxen checkout [--force] [--detach] <branch-or-commit>")
		return 1
	}

	err := r.Checkout(repo.CheckoutOptions{Target: target, Detach: detach, Force: force})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	return 0
}
