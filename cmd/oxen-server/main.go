// Package main is the entry point for the oxen server, the reference
// implementation of spec.md §6.1's wire protocol.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/repo"
	"github.com/oxen-vcs/oxen-core/internal/selfupdate"
	"github.com/oxen-vcs/oxen-core/internal/server"
	"github.com/oxen-vcs/oxen-core/internal/termcolor"
)

const outputFormatJS = "json"

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	initLogger()

	repoPath := flag.String("repo", getEnv("OXEN_REPO", "."), "Path to the oxen repository to serve")
	dbPath := flag.String("lock-db", getEnv("OXEN_LOCK_DB", ""), "Path to the branch-lock/sync-state database (default: <repo>/.oxen/locks.db)")
	port := flag.String("port", getEnv("OXEN_PORT", "8080"), "Port to listen on")
	host := flag.String("host", getEnv("OXEN_HOST", ""), "Host to bind to (empty = all interfaces)")
	colorFlag := flag.String("color", "auto", "Color output: auto, always, never")
	noColor := flag.Bool("no-color", false, "Disable color output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	checkUpdate := flag.Bool("check-update", false, "Check for a newer release and exit")
	outputFormat := flag.String("output", "", "Startup output format: json (default: human-readable)")

	flag.Parse()

	colorMode := termcolor.ColorAuto
	if *noColor {
		colorMode = termcolor.ColorNever
	} else if *colorFlag != "auto" {
		var err error
		colorMode, err = termcolor.ParseColorMode(*colorFlag)
		if err != nil {
			slog.Error("invalid color flag", "value", *colorFlag, "err", err)
			os.Exit(1)
		}
	}
	cw := termcolor.NewWriter(os.Stdout, colorMode)

	portNum, err := strconv.Atoi(*port)
	if err != nil || portNum < 1 || portNum > 65535 {
		fmt.Fprintf(os.Stderr, "%s port must be between 1 and 65535\n", cw.Red("error:"))
		os.Exit(1)
	}
	if *outputFormat != "" && *outputFormat != outputFormatJS {
		fmt.Fprintf(os.Stderr, "%s -output %q is not valid; only \"json\" is supported\n", cw.Red("error:"), *outputFormat)
		os.Exit(1)
	}

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	if *checkUpdate {
		runCheckUpdate()
		os.Exit(0)
	}

	lockDB := *dbPath
	if lockDB == "" {
		lockDB = filepath.Join(*repoPath, ".oxen", "locks.db")
	}

	addr := fmt.Sprintf("%s:%s", *host, *port)

	loadStart := time.Now()
	r, err := repo.Open(*repoPath, slog.Default())
	loadDur := time.Since(loadStart).Round(time.Millisecond)
	if err != nil {
		slog.Error("failed to open repository", "path", *repoPath, "err", err)
		os.Exit(1)
	}

	serv, err := server.NewServer(r, addr, lockDB, slog.Default())
	if err != nil {
		slog.Error("failed to create server", "err", err)
		os.Exit(1)
	}

	slog.Info("starting oxen server", "version", version)
	slog.Info("repository loaded", "path", *repoPath)
	slog.Info("listening", "addr", "http://"+addr)

	if *outputFormat == outputFormatJS {
		printStartupJSON(addr, *repoPath, loadDur)
	} else {
		printStartupBanner(cw, addr, *repoPath, loadDur)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- serv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutdown initiated, press Ctrl+C again to force exit")
		stop()
		serv.Shutdown()
	}
}

// initLogger reads OXEN_LOG_LEVEL and OXEN_LOG_FORMAT from the environment,
// constructs the appropriate slog.Handler, and installs it as the default
// logger via slog.SetDefault.
func initLogger() {
	level := slog.LevelInfo
	switch getEnv("OXEN_LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if getEnv("OXEN_LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func printVersion() {
	fmt.Printf("oxen-server %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runCheckUpdate() {
	const ghRepo = "oxen-vcs/oxen-core"
	fmt.Printf("Current version: %s\n", version)

	latest, err := selfupdate.CheckLatest(ghRepo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error checking for updates: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Latest version:  %s\n", latest)

	if !selfupdate.NeedsUpdate(version, latest) {
		if version == "dev" {
			fmt.Println("Development build — skipping update check.")
		} else {
			fmt.Println("Already up to date.")
		}
		return
	}

	fmt.Printf("\nUpdate available: %s → %s\n", version, latest)
	fmt.Println("To update, run: oxen update")
}

func printStartupBanner(cw *termcolor.Writer, addr, repoPath string, loadDur time.Duration) {
	fmt.Printf("%s %s\n", cw.BoldCyan("oxen-server"), cw.Green(version))
	timing := fmt.Sprintf("(loaded in %s)", cw.Yellow(loadDur.String()))
	fmt.Printf("  repo:    %s  %s\n", repoPath, timing)
	fmt.Printf("  listen:  http://%s\n", addr)
	fmt.Printf("  commit:  %s\n", commit)
	if termcolor.IsTerminal(os.Stdout.Fd()) {
		fmt.Printf("\n%s\n", cw.Bold("Press Ctrl+C to stop."))
	}
}

type startupInfo struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	BuildDate  string `json:"build_date"`
	Listen     string `json:"listen"`
	RepoPath   string `json:"repo_path"`
	RepoLoadMs int64  `json:"repo_load_ms"`
}

func printStartupJSON(addr, repoPath string, loadDur time.Duration) {
	info := startupInfo{
		Version:    version,
		Commit:     commit,
		BuildDate:  buildDate,
		Listen:     "http://" + addr,
		RepoPath:   repoPath,
		RepoLoadMs: loadDur.Milliseconds(),
	}
	data, _ := json.Marshal(info)
	fmt.Println(string(data))
}
