package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/oxen-vcs/oxen-core/internal/cli"
	"github.com/oxen-vcs/oxen-core/internal/repo"
	"github.com/oxen-vcs/oxen-core/internal/termcolor"
)

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	gf, args := parseGlobalFlags(os.Args[1:])

	for _, a := range args {
		if a == "--version" {
			printVersion()
			os.Exit(0)
		}
	}

	cw := termcolor.NewWriter(os.Stdout, gf.colorMode)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	app := cli.NewApp("oxen", version)
	app.Stderr = os.Stderr

	// r is declared here and assigned after dispatch determines that the
	// matched command needs it (NeedsRepo). Closures capture the pointer
	// variable, which is populated before they execute.
	var r *repo.Repository

	app.Register(&cli.Command{
		Name:    "init",
		Summary: "Create a new repository",
		Usage:   "oxen init [path]",
		Run:     func(args []string) int { return runInit(args, logger) },
	})

	app.Register(&cli.Command{
		Name:      "status",
		Summary:   "Show working tree status",
		Usage:     "oxen status [-s|--porcelain] [--watch]",
		Examples:  []string{"oxen status", "oxen status --watch"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runStatus(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "add",
		Summary:   "Stage a path for the next commit",
		Usage:     "oxen add <path>",
		NeedsRepo: true,
		Run:       func(args []string) int { return runAdd(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "rm",
		Summary:   "Unstage or remove a tracked path",
		Usage:     "oxen rm <path>",
		NeedsRepo: true,
		Run:       func(args []string) int { return runRemove(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "commit",
		Summary:   "Record staged changes",
		Usage:     "oxen commit -m <message>",
		Examples:  []string{`oxen commit -m "fix the thing"`},
		NeedsRepo: true,
		Run:       func(args []string) int { return runCommit(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "log",
		Summary:   "Show commit log",
		Usage:     "oxen log [--oneline] [-n <count>]",
		Examples:  []string{"oxen log", "oxen log --oneline -n5"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runLog(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "show",
		Summary:   "Show commit details",
		Usage:     "oxen show [--render] [<commit>]",
		Examples:  []string{"oxen show", "oxen show --render HEAD"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runShow(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "branch",
		Summary:   "List, create, or delete branches",
		Usage:     "oxen branch [<name>] [-d <name>]",
		NeedsRepo: true,
		Run:       func(args []string) int { return runBranch(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "checkout",
		Summary:   "Switch branches or restore the working tree",
		Usage:     "oxen checkout [--force] [--detach] <branch-or-commit>",
		NeedsRepo: true,
		Run:       func(args []string) int { return runCheckout(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "merge",
		Summary:   "Merge another branch into the current one",
		Usage:     "oxen merge <branch-or-commit>",
		NeedsRepo: true,
		Run:       func(args []string) int { return runMerge(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "fetch",
		Summary:   "Download objects and refs from a remote",
		Usage:     "oxen fetch [<remote>] [<branch>]",
		NeedsRepo: true,
		Run:       func(args []string) int { return runFetch(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "pull",
		Summary:   "Fetch and merge a remote branch",
		Usage:     "oxen pull [<remote>] [<branch>]",
		NeedsRepo: true,
		Run:       func(args []string) int { return runPull(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "push",
		Summary:   "Upload local commits to a remote",
		Usage:     "oxen push [<remote>] [<branch>]",
		NeedsRepo: true,
		Run:       func(args []string) int { return runPush(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "remote",
		Summary:   "Manage configured remotes",
		Usage:     "oxen remote add <name> <url>",
		NeedsRepo: true,
		Run:       func(args []string) int { return runRemote(r, args) },
	})

	app.Register(&cli.Command{
		Name:    "version",
		Summary: "Show version information",
		Usage:   "oxen version",
		Run:     func([]string) int { printVersion(); return 0 },
	})

	app.Register(&cli.Command{
		Name:    "update",
		Summary: "Update to the latest release",
		Usage:   "oxen update [--check]",
		Examples: []string{
			"oxen update",
			"oxen update --check",
		},
		Run: func(args []string) int { return runUpdate(args) },
	})

	if len(args) > 0 {
		cmd := app.Lookup(args[0])
		if cmd != nil && cmd.NeedsRepo {
			start := os.Getenv("OXEN_DIR")
			if start == "" {
				start = "."
			}
			var err error
			r, err = repo.Open(start, logger)
			if err != nil {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				os.Exit(128)
			}
		}
	}

	os.Exit(app.Run(args, cw))
}

func printVersion() {
	fmt.Printf("oxen %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
