package config

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file nor the CLI overrides a field.
const (
	DefaultListenAddr      = ":8080"
	DefaultDataDir         = "./data"
	DefaultStartingBalance = "100"
	DefaultLiveQuotes      = true
	DefaultQuoteCacheTTL   = time.Minute
)

// Config is the resolved runtime configuration.
type Config struct {
	ListenAddr      string
	DataDir         string
	StartingBalance decimal.Decimal
	LiveQuotes      bool
	QuoteCacheTTL   time.Duration
}

// File is the on-disk YAML form. Decimal values are strings to avoid any
// float round-trip. LiveQuotes is a pointer so an omitted key takes the
// default instead of false.
type File struct {
	ListenAddr      string        `yaml:"listen_addr"`
	DataDir         string        `yaml:"data_dir"`
	StartingBalance string        `yaml:"starting_balance"`
	LiveQuotes      *bool         `yaml:"live_quotes"`
	QuoteCacheTTL   time.Duration `yaml:"quote_cache_ttl,omitempty"`
}

// Get resolves configuration from a YAML file when --config is provided,
// falling back to CLI flags otherwise. The second return value reports
// whether the interactive setup wizard was requested.
func Get() (Config, bool, error) {
	configPath := flag.String("config", "", "path to yaml config")
	setup := flag.Bool("setup", false, "run the interactive configuration wizard")
	listen := flag.String("listen", DefaultListenAddr, "http listen address")
	dataDir := flag.String("datadir", DefaultDataDir, "directory for persistent state")
	balance := flag.String("balance", DefaultStartingBalance, "starting cash balance for new accounts")
	liveQuotes := flag.Bool("livequotes", DefaultLiveQuotes, "fetch live quotes (fallback table is used on failure either way)")
	flag.Parse()

	if *setup {
		return Config{}, true, nil
	}

	if *configPath != "" {
		cfg, err := getYaml(*configPath)
		return cfg, false, err
	}

	startingBalance, err := decimal.NewFromString(*balance)
	if err != nil {
		return Config{}, false, errors.Wrapf(err, "invalid --balance provided, --balance=%s", *balance)
	}
	if startingBalance.IsNegative() {
		return Config{}, false, errors.Errorf("invalid --balance provided, --balance=%s", *balance)
	}

	return Config{
		ListenAddr:      *listen,
		DataDir:         *dataDir,
		StartingBalance: startingBalance,
		LiveQuotes:      *liveQuotes,
		QuoteCacheTTL:   DefaultQuoteCacheTTL,
	}, false, nil
}

func getYaml(path string) (Config, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}

	var file File
	if err := yaml.Unmarshal(payload, &file); err != nil {
		return Config{}, errors.Wrap(err, "decode config file")
	}

	return FromFile(file)
}

// FromFile validates the YAML form and applies defaults for missing fields.
func FromFile(file File) (Config, error) {
	if file.ListenAddr == "" {
		file.ListenAddr = DefaultListenAddr
	}
	if file.DataDir == "" {
		file.DataDir = DefaultDataDir
	}
	if file.StartingBalance == "" {
		file.StartingBalance = DefaultStartingBalance
	}
	if file.QuoteCacheTTL <= 0 {
		file.QuoteCacheTTL = DefaultQuoteCacheTTL
	}
	liveQuotes := DefaultLiveQuotes
	if file.LiveQuotes != nil {
		liveQuotes = *file.LiveQuotes
	}

	startingBalance, err := decimal.NewFromString(file.StartingBalance)
	if err != nil {
		return Config{}, errors.Wrapf(err, "invalid starting_balance %q", file.StartingBalance)
	}
	if startingBalance.IsNegative() {
		return Config{}, errors.Errorf("starting_balance must not be negative, got %s", file.StartingBalance)
	}

	return Config{
		ListenAddr:      file.ListenAddr,
		DataDir:         file.DataDir,
		StartingBalance: startingBalance,
		LiveQuotes:      liveQuotes,
		QuoteCacheTTL:   file.QuoteCacheTTL,
	}, nil
}

// WriteFile saves the YAML form to path.
func WriteFile(path string, file File) error {
	payload, err := yaml.Marshal(file)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return errors.Wrap(err, "write config file")
	}
	return nil
}
