package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxen-vcs/oxen-core/internal/repo"
)

func runRemote(r *repo.Repository, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: oxen remote add <name> <url>")
		return 1
	}

	switch args[0] {
	case "add":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: oxen remote add <name> <url>")
			return 1
		}
		return addRemote(r, args[1], args[2])
	case "-v", "list":
		return listRemotes(r)
	default:
		fmt.Fprintf(os.Stderr, "oxen remote: unknown subcommand %q\n", args[0])
		return 1
	}
}

func addRemote(r *repo.Repository, name, url string) int {
	cfg := r.Config
	cfg.SetRemote(name, url)
	if cfg.DefaultRemote == "" {
		cfg.DefaultRemote = name
	}
	if err := cfg.Save(filepath.Join(r.DotDir(), repo.ConfigFile)); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	return 0
}

func listRemotes(r *repo.Repository) int {
	for _, rem := range r.Config.Remotes {
		fmt.Printf("%s\t%s\n", rem.Name, rem.URL)
	}
	return 0
}
