package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/urfave/cli.v1"
)

// Config aggregates every subsystem's configuration the launcher needs. The
// mapstructure tags name the TOML sections of the config file.
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Network   NetworkConfig   `mapstructure:"network"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Validator ValidatorConfig `mapstructure:"validator"`
}

type NodeConfig struct {
	DataDir      string `mapstructure:"datadir"`
	ChainDataDir string `mapstructure:"chaindata"`
	Name         string `mapstructure:"name"`
}

type NetworkConfig struct {
	Name           string `mapstructure:"name"`
	FakeValidators int    `mapstructure:"fakenet_validators"`
	FakeRounds     int    `mapstructure:"fakenet_rounds"`
	FakeFeeMicro   uint64 `mapstructure:"fakenet_fee"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Port    int    `mapstructure:"port"`
}

type LoggingConfig struct {
	Verbosity int    `mapstructure:"verbosity"`
	Format    string `mapstructure:"format"`
	Color     bool   `mapstructure:"color"`
}

type ValidatorConfig struct {
	// PubKey is the node's validator key in hex; empty runs a non-validator.
	PubKey string `mapstructure:"pubkey"`
	// ModelPath points at a canonical JSON scoring model to activate.
	ModelPath string `mapstructure:"model"`
}

func defaultConfig() Config {
	d := DefaultConfig()
	return Config{
		Node: NodeConfig{
			DataDir: d.Node.DataDir,
			Name:    d.Node.Name,
		},
		Network: NetworkConfig{
			Name:           d.Network.Name,
			FakeValidators: d.Network.FakeValidators,
			FakeRounds:     d.Network.FakeRounds,
			FakeFeeMicro:   d.Network.FakeFeeMicro,
		},
		Metrics: MetricsConfig{
			Enabled: d.Metrics.Enable,
			Addr:    d.Metrics.Addr,
			Port:    d.Metrics.Port,
		},
		Logging: LoggingConfig{
			Verbosity: d.Logging.Verbosity,
			Format:    d.Logging.Format,
			Color:     d.Logging.Color,
		},
	}
}

// MakeAllConfigs merges defaults, the optional TOML config file, and CLI flag
// overrides into a single config, then resolves and creates the data dirs.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if file := ctx.GlobalString("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", file, err)
		}
	}

	applyCLIOverrides(ctx, &cfg)

	cfg.Node.DataDir = resolvePath(cfg.Node.DataDir)
	if cfg.Node.ChainDataDir == "" {
		cfg.Node.ChainDataDir = filepath.Join(cfg.Node.DataDir, "chaindata")
	} else {
		cfg.Node.ChainDataDir = resolvePath(cfg.Node.ChainDataDir)
	}
	if err := ensureDir(cfg.Node.DataDir); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(cfg)
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet("datadir") {
		cfg.Node.DataDir = ctx.GlobalString("datadir")
	}
	if ctx.GlobalIsSet("datadir.chaindata") {
		cfg.Node.ChainDataDir = ctx.GlobalString("datadir.chaindata")
	}
	if ctx.GlobalIsSet("identity") {
		cfg.Node.Name = ctx.GlobalString("identity")
	}

	if ctx.GlobalIsSet("network") {
		cfg.Network.Name = ctx.GlobalString("network")
	}
	if ctx.GlobalIsSet("fakenet.validators") {
		cfg.Network.FakeValidators = ctx.GlobalInt("fakenet.validators")
	}
	if ctx.GlobalIsSet("fakenet.rounds") {
		cfg.Network.FakeRounds = ctx.GlobalInt("fakenet.rounds")
	}
	if ctx.GlobalIsSet("fakenet.fee") {
		cfg.Network.FakeFeeMicro = ctx.GlobalUint64("fakenet.fee")
	}

	if ctx.GlobalBool("metrics") {
		cfg.Metrics.Enabled = true
	}
	if ctx.GlobalIsSet("metrics.addr") {
		cfg.Metrics.Addr = ctx.GlobalString("metrics.addr")
	}
	if ctx.GlobalIsSet("metrics.port") {
		cfg.Metrics.Port = ctx.GlobalInt("metrics.port")
	}

	if ctx.GlobalIsSet("log.format") {
		cfg.Logging.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Logging.Color = ctx.GlobalBool("log.color")
	}

	if ctx.GlobalIsSet("validator.pubkey") {
		cfg.Validator.PubKey = ctx.GlobalString("validator.pubkey")
	}
	if ctx.GlobalIsSet("model") {
		cfg.Validator.ModelPath = ctx.GlobalString("model")
	}
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, p)
	}
	return p
}
