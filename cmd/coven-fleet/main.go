// ABOUTME: Entry point for the coven-fleet control server
// ABOUTME: Manages robot registration, workspace initialization, and the control loops

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-fleet/internal/config"
	"github.com/2389/coven-fleet/internal/fleet"
	"github.com/2389/coven-fleet/internal/runner"
	"github.com/2389/coven-fleet/internal/store"
	"github.com/2389/coven-fleet/internal/workspace"
)

// version is set at build time via -ldflags.
var version = "dev"

const banner = `
                                 __ _           _
  ___ _____   _____ _ __        / _| | ___  ___| |_
 / __/ _ \ \ / / _ \ '_ \ _____| |_| |/ _ \/ _ \ __|
| (_| (_) \ V /  __/ | | |_____|  _| |  __/  __/ |_
 \___\___/ \_/ \___|_| |_|     |_| |_|\___|\___|\__|
`

const defaultConfigTemplate = `# coven-fleet configuration
database:
  path: %s

robots:
  workspace_path: %s
  rcc_binary: rcc
  heartbeat_timeout: 90s
  watch_manifests: true

loops:
  dispatch_interval: 1m
  reap_interval: 3m

logging:
  level: info
  format: text
`

// getConfigPath returns the path to the fleet config file.
// Priority: COVEN_FLEET_CONFIG env var > XDG_CONFIG_HOME/coven/fleet.yaml > ~/.config/coven/fleet.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_FLEET_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "fleet.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "fleet.yaml")
}

// getDataPath returns the path to the coven-fleet data directory.
// Priority: XDG_DATA_HOME/coven-fleet > ~/.local/share/coven-fleet
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven-fleet")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-fleet <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                               Start the control loops")
		fmt.Println("  init                                Create a default config file")
		fmt.Println("  register --address ADDR [--platform P]  Register a robot")
		fmt.Println("  robots                              List registered robots")
		fmt.Println("  init-robot --robot ID --dir PATH    Initialize a robot workspace")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "register":
		err = runRegister(ctx)
	case "robots":
		err = runRobots(ctx)
	case "init-robot":
		err = runInitRobot(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Workspaces: %s\n", cfg.Robots.WorkspacePath)
	fmt.Println()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	workspaces := workspace.NewInitializer(cfg.Robots.WorkspacePath, logger)
	rcc := runner.NewRCCRunner(cfg.Robots.RCCBinary, workspaces, st, logger)

	assigner := fleet.NewAssigner(st, logger)
	buffer := fleet.NewStagingBuffer(assigner, logger)
	health := fleet.NewHealthMonitor(st, st, assigner, cfg.Robots.HeartbeatTimeout, logger)
	dispatch := fleet.NewDispatcher(st, st, buffer, rcc, logger)
	ctrl := fleet.NewController(health, dispatch, logger)
	loops := fleet.NewRunner(ctrl, cfg.Loops.DispatchInterval, cfg.Loops.ReapInterval, logger)

	logger.Info("starting coven-fleet",
		"config", configPath,
		"dispatch_interval", cfg.Loops.DispatchInterval,
		"reap_interval", cfg.Loops.ReapInterval,
		"heartbeat_timeout", cfg.Robots.HeartbeatTimeout,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loops.Run(ctx) })

	if cfg.Robots.WatchManifests {
		watcher, err := workspace.NewWatcher(workspaces, st, logger)
		if err != nil {
			return fmt.Errorf("creating manifest watcher: %w", err)
		}
		defer watcher.Close()

		if err := watchInitializedRobots(ctx, st, watcher, logger); err != nil {
			return err
		}
		g.Go(func() error { return watcher.Run(ctx) })
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("control loops: %w", err)
	}

	logger.Info("coven-fleet stopped")
	return nil
}

// watchInitializedRobots adds every initialized robot's workspace to the
// manifest watcher.
func watchInitializedRobots(ctx context.Context, st store.Store, watcher *workspace.Watcher, logger *slog.Logger) error {
	robots, err := st.ListRobots(ctx)
	if err != nil {
		return fmt.Errorf("listing robots: %w", err)
	}

	for _, robot := range robots {
		if !robot.Initialized {
			continue
		}
		if err := watcher.Watch(robot.ID); err != nil {
			// A missing workspace dir is not fatal; the robot just needs
			// re-initialization.
			logger.Warn("cannot watch workspace", "robot", robot.ID, "error", err)
		}
	}

	return nil
}

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	dataPath := getDataPath()
	content := fmt.Sprintf(defaultConfigTemplate,
		filepath.Join(dataPath, "fleet.db"),
		filepath.Join(dataPath, "workspaces"),
	)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configPath)
	return nil
}

func runRegister(ctx context.Context) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	address := fs.String("address", "", "robot network address (required)")
	platform := fs.String("platform", "other", "robot platform tag")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *address == "" {
		return fmt.Errorf("--address is required")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	robot, err := st.Register(ctx, *address, *platform)
	if err != nil {
		return fmt.Errorf("registering robot: %w", err)
	}

	fmt.Printf("Registered robot %s (%s, %s)\n", robot.ID, robot.Address, robot.Platform)
	return nil
}

func runRobots(ctx context.Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	robots, err := st.ListRobots(ctx)
	if err != nil {
		return fmt.Errorf("listing robots: %w", err)
	}

	if len(robots) == 0 {
		fmt.Println("No robots registered")
		return nil
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	for _, robot := range robots {
		switch robot.Status {
		case store.StatusActive:
			green.Printf("  ● ")
		case store.StatusBusy:
			yellow.Printf("  ● ")
		case store.StatusError:
			red.Printf("  ● ")
		default:
			gray.Printf("  ○ ")
		}

		fmt.Printf("%s  %s  %s", robot.ID, robot.Address, robot.Status)
		if !robot.Initialized {
			gray.Print("  (uninitialized)")
		}
		if len(robot.AvailableTasks) > 0 {
			gray.Printf("  tasks: %v", robot.AvailableTasks)
		}
		fmt.Println()
	}

	return nil
}

func runInitRobot(ctx context.Context) error {
	fs := flag.NewFlagSet("init-robot", flag.ExitOnError)
	robotID := fs.String("robot", "", "robot ID (required)")
	dir := fs.String("dir", "", "robot package source directory (required)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *robotID == "" || *dir == "" {
		return fmt.Errorf("--robot and --dir are required")
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if _, err := st.GetRobot(ctx, *robotID); err != nil {
		return fmt.Errorf("looking up robot: %w", err)
	}

	workspaces := workspace.NewInitializer(cfg.Robots.WorkspacePath, slog.Default())
	tasks, err := workspaces.Initialize(*robotID, *dir)
	if err != nil {
		return fmt.Errorf("initializing workspace: %w", err)
	}

	if err := st.SetInitialized(ctx, *robotID, workspaces.ManifestPath(*robotID), tasks); err != nil {
		return fmt.Errorf("marking robot initialized: %w", err)
	}

	fmt.Printf("Initialized workspace for robot %s\n", *robotID)
	fmt.Printf("Available tasks: %v\n", tasks)
	return nil
}

// openStore loads the config and opens the SQLite store.
func openStore() (*store.SQLiteStore, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

// setupLogger builds the process logger from logging config.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
