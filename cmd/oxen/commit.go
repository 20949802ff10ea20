package main

import (
	"fmt"
	"os"

	"github.com/oxen-vcs/oxen-core/internal/repo"
)

func runCommit(r *repo.Repository, args []string) int {
	message := ""
	for i := 0; i < len(args); i++ {
		if args[i] == "-m" || args[i] == "--message" {
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "usage: oxen commit -m <message>")
				return 1
			}
			message = args[i+1]
			i++
		}
	}
	if message == "" {
		fmt.Fprintln(os.Stderr, "fatal: a commit message is required (-m)")
		return 128
	}

	h, err := r.Commit(repo.CommitOptions{
		Message: message,
		Author:  commitAuthor(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	fmt.Printf("[%s] %s\n", h.Short(8), message)
	return 0
}

// commitAuthor reads OXEN_AUTHOR_NAME/OXEN_AUTHOR_EMAIL, falling back to a
// generic identity when unset — oxen has no global user-config file of its
// own (spec.md scopes configuration to the repo-local .oxen/config).
func commitAuthor() repo.Signature {
	name := os.Getenv("OXEN_AUTHOR_NAME")
	if name == "" {
		name = "oxen"
	}
	email := os.Getenv("OXEN_AUTHOR_EMAIL")
	if email == "" {
		email = "oxen@localhost"
	}
	return repo.Signature{Name: name, Email: email}
}
