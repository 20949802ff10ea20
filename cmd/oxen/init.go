package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/oxen-vcs/oxen-core/internal/repo"
)

func runInit(args []string, logger *slog.Logger) int {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	if _, err := repo.Init(path, logger); err != nil {
		if errors.Is(err, repo.ErrAlreadyInitialized) {
			fmt.Fprintf(os.Stderr, "fatal: %s is already an oxen repository\n", path)
			return 128
		}
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	fmt.Printf("Initialized empty oxen repository in %s/.oxen\n", path)
	return 0
}
