package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bleue/bleue-tui/internal/clock"
	"github.com/bleue/bleue-tui/internal/config"
	"github.com/bleue/bleue-tui/internal/gateway"
	"github.com/bleue/bleue-tui/internal/logger"
	"github.com/bleue/bleue-tui/internal/tui"
)

func main() {
	// Handle --version flag
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Println(VersionInfo())
		os.Exit(0)
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, config.ErrMissing) {
			fmt.Fprintf(os.Stderr, "Set %s and %s, or use --local-db for an offline database.\n",
				config.SupabaseURLEnv, config.SupabaseKeyEnv)
		}
		os.Exit(1)
	}
}

// options are the command-line overrides of the configuration.
type options struct {
	configPath      string
	logFile         string
	logLevel        string
	localDB         string
	refreshInterval string
}

func run(args []string) error {
	var opts options
	flagSet := pflag.NewFlagSet("bleue-tui", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "YAML configuration file (default: $"+config.ConfigEnv+")")
	flagSet.StringVar(&opts.logFile, "log-file", "", "write logs to this file (default: discard)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warning or error")
	flagSet.StringVar(&opts.localDB, "local-db", "", "use a local sqlite database instead of Supabase")
	flagSet.StringVar(&opts.refreshInterval, "refresh-interval", "", "period of background refresh, e.g. 5s")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	// Load .env before reading the environment; existing variables win.
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	dotenv, err := config.LoadDotEnv(cwd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LogFile, logger.ParseLevel(cfg.LogLevel)); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()

	logger.Info("Application starting version=%s backend=%s", Version, cfg.Backend())
	if dotenv != "" {
		logger.Debug("Loaded environment from %s", dotenv)
	}
	logger.Debug("Configuration: Timeout=%s, RefreshInterval=%s, Config=%s",
		cfg.Timeout, cfg.RefreshInterval, cfg.Path)

	gw, closeGateway, err := openGateway(cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	app := tui.NewApp(gw, cfg)
	if err := app.Run(); err != nil {
		logger.ErrorWithErr(err, "Application error")
		return fmt.Errorf("running application: %w", err)
	}

	logger.Info("Application shutdown")
	return nil
}

// loadConfig layers defaults, the YAML file, the environment and finally
// the command-line flags.
func loadConfig(opts options) (config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv(config.ConfigEnv)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if opts.logFile != "" {
		cfg.LogFile = opts.logFile
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.localDB != "" {
		cfg.LocalDB = opts.localDB
	}
	if opts.refreshInterval != "" {
		d, err := config.ParseInterval(opts.refreshInterval)
		if err != nil {
			return config.Config{}, fmt.Errorf("--refresh-interval: %w", err)
		}
		cfg.RefreshInterval = d
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openGateway(cfg config.Config) (gateway.Gateway, func(), error) {
	if cfg.LocalDB != "" {
		local, err := gateway.OpenLocal(cfg.LocalDB, clock.Real(), cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", cfg.LocalDB, err)
		}
		return local, func() { _ = local.Close() }, nil
	}
	client := gateway.NewClient(gateway.ClientConfig{
		URL:     cfg.SupabaseURL,
		Key:     cfg.SupabaseKey,
		Timeout: cfg.Timeout,
	})
	return client, func() {}, nil
}
