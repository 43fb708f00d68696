// Copyright 2025 The TagServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the tag autocompletion server and CLI [DBG] application.

Note: This is a BETA release. APIs and functionality may rapidly change.

TagServe suggests tags for search and tagging inputs. Suggestions come from
three places: the user's own input history, a compiled tag index searched
locally, and the server-side tag endpoint when the local index has nothing.
It can operate as a MessagePack IPC server for integration with editors and
browsers, or as a CLI application for testing and debugging.

# Usage

Start the server with default settings:

	tagserve

Use a compiled index dump instead of downloading it, and enable debug mode:

	tagserve -index tags.bin -d

Run in CLI mode for interactive testing:

	tagserve -c -mode single-tag

# Configuration

Runtime configuration is managed through a TOML file:

	[autocomplete]
	max_suggestions = 10
	history_when_typing = 3
	debounce_ms = 300

	[remote]
	base_url = "http://localhost:4000"

	[store]
	path = ""

The config file is automatically created with defaults if it doesn't exist.
An empty store path keeps history in memory only.

# IPC Protocol

The server communicates via MessagePack over stdin/stdout. See the server
package for the message layout.

	{"id": "a1", "op": "attach", "mode": "multi-tags", "hist": "search"}
	{"id": "r1", "op": "input", "f": 1, "v": "forest, t", "cur": 9}

# Command Line Flags

	-config string
	    Path to a config file
	-index string
	    Compiled index dump (.bin) to use instead of the server one
	-store string
	    Badger directory for history and settings (overrides [store] path)
	-metrics string
	    Address to serve prometheus metrics on, e.g. :9090
	-d  Enable debug mode with detailed logging
	-c  Run in CLI mode instead of server mode
	-mode string
	    Field mode for CLI mode: multi-tags or single-tag
	-hist string
	    History bucket for CLI mode
	-rebuild-config
	    Overwrite the default config file with the defaults and exit
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/bastiangx/tagserve/internal/cli"
	"github.com/bastiangx/tagserve/internal/logger"
	"github.com/bastiangx/tagserve/internal/utils"
	"github.com/bastiangx/tagserve/pkg/autocomplete"
	"github.com/bastiangx/tagserve/pkg/client"
	"github.com/bastiangx/tagserve/pkg/config"
	"github.com/bastiangx/tagserve/pkg/index"
	"github.com/bastiangx/tagserve/pkg/kv"
	"github.com/bastiangx/tagserve/pkg/server"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	Version = "0.1.0-beta"
	AppName = "tagserve"
	gh      = "https://github.com/bastiangx/tagserve"
)

// sigHandler runs cleanup and exits normally on SIGINT/SIGTERM.
func sigHandler(cleanup func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		cleanup()
		os.Exit(0)
	}()
}

// main calls other packages to initialize the server or CLI inputs.
// main() does not implement logic for them and only manages the flow.
func main() {
	showVersion := flag.Bool("version", false, "Show current version")
	configPath := flag.String("config", "", "Path to a custom config file")
	indexFile := flag.String("index", "", "Compiled index dump (.bin) to use instead of downloading it")
	storePath := flag.String("store", "", "Badger directory for history and settings (overrides config)")
	metricsAddr := flag.String("metrics", "", "Serve prometheus metrics on this address")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	mode := flag.String("mode", "", "Field mode in CLI mode (multi-tags, single-tag)")
	histID := flag.String("hist", "", "History bucket in CLI mode")
	rebuild := flag.Bool("rebuild-config", false, "Rewrite the default config file and exit")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	if *rebuild {
		if err := config.RebuildConfigFile(); err != nil {
			log.Fatalf("Failed to rebuild config: %v", err)
		}
		log.Print("Config rebuilt", "path", config.GetActiveConfigPath(""))
		return
	}

	cfg, usedPath, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Debugf("Using config file: (%s)", config.GetActiveConfigPath(usedPath))

	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	opts := []autocomplete.Option{autocomplete.WithHistoryConfig(cfg.HistorySettings())}
	var indexPath string
	if *indexFile != "" {
		ci, path, err := loadIndexFile(*indexFile)
		if err != nil {
			log.Fatalf("Failed to load compiled index: %v", err)
		}
		indexPath = path
		opts = append(opts, autocomplete.WithIndex(ci))
	}
	if rc, ok := cfg.RemoteSettings(); ok {
		remote, err := client.New(rc, client.WithBlobCache(store))
		if err != nil {
			log.Fatalf("Invalid [remote] config: %v", err)
		}
		log.Debugf("Remote: %s", remote)
		opts = append(opts, autocomplete.WithRemote(remote))
	} else {
		log.Warn("No remote configured, only history and a local index are used")
	}

	session := autocomplete.NewSession(cfg.AutocompleteSettings(), store, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	cleanup := sync.OnceFunc(func() {
		cancel()
		session.Close()
		if err := store.Close(); err != nil {
			log.Errorf("Closing store: %v", err)
		}
	})
	sigHandler(cleanup)

	if indexPath != "" {
		// rebuilt dumps are picked up without a restart
		if err := index.WatchFile(ctx, indexPath, session.SetIndex); err != nil {
			log.Warnf("Index hot reload disabled: %v", err)
		}
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	// CLI would be mainly used for testing and dbg purposes.
	if *cliMode {
		log.SetReportTimestamp(false)
		field := autocomplete.Field{Mode: cfg.CLI.Mode(), HistoryID: cfg.CLI.DefaultHistoryID}
		if *mode != "" {
			cfg.CLI.DefaultMode = *mode
			field.Mode = cfg.CLI.Mode()
		}
		if *histID != "" {
			field.HistoryID = *histID
		}
		log.Debug("Field info:", "mode", field.Mode, "history", field.HistoryID)

		err := cli.NewInputHandler(session, field).Start()
		cleanup()
		if err != nil {
			log.Fatalf("CLI error: %v", err)
		}
		return
	}

	log.Debug("spawning IPC")
	srv := server.NewServer(session, store)
	showStartupInfo(usedPath, cfg.Store.Path)

	err = srv.Start()
	srv.Close()
	cleanup()
	if err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

// openStore opens badger when a store path is configured, otherwise a memory store.
func openStore(cfg *config.Config) (kv.Store, error) {
	bc, persistent := cfg.StoreSettings()
	if !persistent {
		log.Debug("Using in-memory store")
		return kv.NewMemory(), nil
	}
	// badger's info output is demoted to debug and only shown with -d
	level := log.WarnLevel
	if log.GetLevel() == log.DebugLevel {
		level = log.DebugLevel
	}
	bc.Logger = logger.NewWithConfig(os.Stderr, "badger", level, false, false, log.TextFormatter)
	log.Debugf("Using badger store at: %s", bc.Path)
	return kv.OpenBadger(bc)
}

// loadIndexFile looks for name in the working dir, next to the binary and
// in the config dir before decoding it. The resolved path is returned too.
func loadIndexFile(name string) (*index.CompiledIndex, string, error) {
	configDir, _ := config.GetConfigDir()
	resolver, err := utils.NewPathResolver(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to init path resolver: %w", err)
	}
	path, err := resolver.Find(name)
	if err != nil {
		return nil, "", err
	}
	ci, err := index.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	return ci, path, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Debugf("Serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("Metrics server stopped: %v", err)
	}
}

func printVersion() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	logger.SetStyles(styles)

	logger.Print("")
	logger.Print("[ TagServe ] Tag suggestions from history, a local index and the server")
	logger.Print("", "version", Version)
	logger.Print("")
	logger.Print("use -h or --help to see available options")
	logger.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(configPath, storePath string) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	if storePath == "" {
		storePath = "memory"
	}

	println("==========")
	println(" TagServe ")
	println("==========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Infof("config: ( %s )", config.GetActiveConfigPath(configPath))
	log.Infof("store: ( %s )", storePath)
	log.Info("status: ready")
	println("==========")
	println("Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}
