package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
	"github.com/tyler-smith/go-bip39"

	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

const (
	// FileName is the config file looked up under the daemon home.
	FileName = "config.toml"
	// EnvPrefix prefixes environment overrides, e.g. ORACLED_CHAIN_ENDPOINT.
	EnvPrefix = "ORACLED"

	// DevMnemonic is the mnemonic the truffle development network is started with.
	DevMnemonic = "wish exercise slender legal goose lecture subway excuse casino spoil clerk gesture"
)

type Config struct {
	Chain    ChainConfig    `toml:"chain" mapstructure:"chain"`
	Accounts AccountsConfig `toml:"accounts" mapstructure:"accounts"`
	Oracle   OracleConfig   `toml:"oracle" mapstructure:"oracle"`
	API      APIConfig      `toml:"api" mapstructure:"api"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`

	home string
}

type ChainConfig struct {
	Endpoint       string `toml:"endpoint" mapstructure:"endpoint"`
	AppAddress     string `toml:"app_address" mapstructure:"app_address"`
	DeploymentFile string `toml:"deployment_file" mapstructure:"deployment_file"`
	Network        string `toml:"network" mapstructure:"network"`
	ChainID        uint64 `toml:"chain_id" mapstructure:"chain_id"`
}

type AccountsConfig struct {
	Mnemonic   string `toml:"mnemonic" mapstructure:"mnemonic"`
	FirstIndex int    `toml:"first_index" mapstructure:"first_index"`
	Count      int    `toml:"count" mapstructure:"count"`
}

type OracleConfig struct {
	IndexBuckets int    `toml:"index_buckets" mapstructure:"index_buckets"`
	StakeWei     string `toml:"stake_wei" mapstructure:"stake_wei"`
	GasLimit     uint64 `toml:"gas_limit" mapstructure:"gas_limit"`
	StatusCodes  []int  `toml:"status_codes" mapstructure:"status_codes"`
}

type APIConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	ToFile bool   `toml:"to_file" mapstructure:"to_file"`
}

// Default returns the configuration of the local truffle network: accounts 25..48 of the
// development mnemonic, 1 ether stake and a 5M gas limit.
func Default() Config {
	codes := make([]int, 0, 6)
	for _, code := range types.AllStatusCodes() {
		codes = append(codes, int(code))
	}

	return Config{
		Chain: ChainConfig{
			Endpoint: "http://localhost:8545",
			Network:  "localhost",
		},
		Accounts: AccountsConfig{
			Mnemonic:   DevMnemonic,
			FirstIndex: 25,
			Count:      24,
		},
		Oracle: OracleConfig{
			IndexBuckets: 10,
			StakeWei:     big.NewInt(params.Ether).String(),
			GasLimit:     5_000_000,
			StatusCodes:  codes,
		},
		API: APIConfig{
			Enabled: true,
			Listen:  ":3000",
		},
		Log: LogConfig{
			Level:  "info",
			ToFile: false,
		},
	}
}

// DefaultHome is ~/.oracled.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".oracled"
	}

	return filepath.Join(home, ".oracled")
}

// Load reads <home>/config.toml, creating it with defaults when missing, then applies
// ORACLED_* environment overrides and the truffle deployment file if one is configured.
func Load(home string) (*Config, error) {
	cfg, err := Read(home)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Infof("Loaded config from %s", filepath.Join(cfg.home, FileName))
	return cfg, nil
}

// Read is Load without validation.
func Read(home string) (*Config, error) {
	if home == "" {
		home = DefaultHome()
	}
	path := filepath.Join(home, FileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteDefault(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		log.Infof("Created default config at %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg, viper.DecodeHook(stringToIntSliceHook)); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.home = home

	if cfg.Chain.DeploymentFile != "" {
		if err := cfg.applyDeployment(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// WriteDefault writes Default() to path, creating parent directories.
func WriteDefault(path string) error {
	return Write(path, Default())
}

// Write marshals cfg as TOML into path.
func Write(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal TOML: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("chain.endpoint", def.Chain.Endpoint)
	v.SetDefault("chain.app_address", def.Chain.AppAddress)
	v.SetDefault("chain.deployment_file", def.Chain.DeploymentFile)
	v.SetDefault("chain.network", def.Chain.Network)
	v.SetDefault("chain.chain_id", def.Chain.ChainID)
	v.SetDefault("accounts.mnemonic", def.Accounts.Mnemonic)
	v.SetDefault("accounts.first_index", def.Accounts.FirstIndex)
	v.SetDefault("accounts.count", def.Accounts.Count)
	v.SetDefault("oracle.index_buckets", def.Oracle.IndexBuckets)
	v.SetDefault("oracle.stake_wei", def.Oracle.StakeWei)
	v.SetDefault("oracle.gas_limit", def.Oracle.GasLimit)
	v.SetDefault("oracle.status_codes", def.Oracle.StatusCodes)
	v.SetDefault("api.enabled", def.API.Enabled)
	v.SetDefault("api.listen", def.API.Listen)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.to_file", def.Log.ToFile)
}

// stringToIntSliceHook lets ORACLED_ORACLE_STATUS_CODES="0,10,20" populate []int.
func stringToIntSliceHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]int{}) {
		return data, nil
	}

	raw := strings.TrimSpace(reflect.ValueOf(data).String())
	if raw == "" {
		return []int{}, nil
	}

	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := cast.ToIntE(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", part, err)
		}
		out = append(out, n)
	}

	return out, nil
}

// applyDeployment reads the config.json written by the truffle migration and takes the
// endpoint and app contract address of the configured network from it.
func (c *Config) applyDeployment() error {
	path := c.Chain.DeploymentFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.home, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "read deployment file %s: %v", path, err)
	}
	if !gjson.ValidBytes(data) {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "deployment file %s is not valid JSON", path)
	}

	network, ok := gjson.ParseBytes(data).Map()[c.Chain.Network]
	if !ok || !network.IsObject() {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "network %q not found in %s", c.Chain.Network, path)
	}

	if url := network.Get("url").String(); url != "" {
		c.Chain.Endpoint = url
	}
	if app := network.Get("appAddress").String(); app != "" {
		c.Chain.AppAddress = app
	}

	log.Debugf("Applied deployment %s (network %s): endpoint=%s app=%s", path, c.Chain.Network, c.Chain.Endpoint, c.Chain.AppAddress)
	return nil
}

// Validate checks every option and reports the first invalid field.
func (c *Config) Validate() error {
	if c.Chain.Endpoint == "" {
		return errorsmod.Wrap(types.ErrInvalidConfig, "chain endpoint is required")
	}

	if !common.IsHexAddress(c.Chain.AppAddress) {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "chain app_address %q is not a hex address", c.Chain.AppAddress)
	}

	if !bip39.IsMnemonicValid(c.Accounts.Mnemonic) {
		return errorsmod.Wrap(types.ErrInvalidConfig, "accounts mnemonic is not a valid BIP-39 mnemonic")
	}

	if c.Accounts.FirstIndex < 0 {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "accounts first_index must not be negative: %d", c.Accounts.FirstIndex)
	}

	if c.Accounts.Count <= 0 {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "accounts count must be positive: %d", c.Accounts.Count)
	}

	if c.Oracle.IndexBuckets <= 0 || c.Oracle.IndexBuckets > 255 {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "oracle index_buckets must be in [1, 255]: %d", c.Oracle.IndexBuckets)
	}

	if _, err := c.Stake(); err != nil {
		return err
	}

	if c.Oracle.GasLimit == 0 {
		return errorsmod.Wrap(types.ErrInvalidConfig, "oracle gas_limit is required")
	}

	if len(c.Oracle.StatusCodes) == 0 {
		return errorsmod.Wrap(types.ErrInvalidConfig, "oracle status_codes must not be empty")
	}

	if _, err := types.StatusCodesFromInts(c.Oracle.StatusCodes); err != nil {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "oracle status_codes: %v", err)
	}

	if c.API.Enabled && c.API.Listen == "" {
		return errorsmod.Wrap(types.ErrInvalidConfig, "api listen address is required when the api is enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errorsmod.Wrapf(types.ErrInvalidConfig, "log level %q must be one of debug, info, warn, error", c.Log.Level)
	}

	return nil
}

func (c *Config) Home() string {
	return c.home
}

func (c *Config) AppAddress() common.Address {
	return common.HexToAddress(c.Chain.AppAddress)
}

// Stake is the registration value in wei.
func (c *Config) Stake() (*big.Int, error) {
	stake, ok := new(big.Int).SetString(strings.TrimSpace(c.Oracle.StakeWei), 10)
	if !ok || stake.Sign() <= 0 {
		return nil, errorsmod.Wrapf(types.ErrInvalidConfig, "oracle stake_wei %q must be a positive integer", c.Oracle.StakeWei)
	}

	return stake, nil
}

func (c *Config) StatusCodes() []types.StatusCode {
	codes, _ := types.StatusCodesFromInts(c.Oracle.StatusCodes)
	return codes
}

func (c *Config) IndexBuckets() uint8 {
	return uint8(c.Oracle.IndexBuckets)
}

// Print logs the effective configuration, never the mnemonic.
func (c *Config) Print() {
	log.Infof("%-15s: %s", "Home", c.home)
	log.Infof("%-15s: %s", "Chain Endpoint", c.Chain.Endpoint)
	log.Infof("%-15s: %s", "App Address", c.Chain.AppAddress)
	log.Infof("%-15s: %d", "Chain ID", c.Chain.ChainID)
	log.Infof("%-15s: %d..%d", "Accounts", c.Accounts.FirstIndex, c.Accounts.FirstIndex+c.Accounts.Count-1)
	log.Infof("%-15s: %d", "Index Buckets", c.Oracle.IndexBuckets)
	log.Infof("%-15s: %s", "Stake (wei)", c.Oracle.StakeWei)
	log.Infof("%-15s: %d", "Gas Limit", c.Oracle.GasLimit)
	log.Infof("%-15s: %v", "Status Codes", c.Oracle.StatusCodes)
	if c.API.Enabled {
		log.Infof("%-15s: %s", "API Listen", c.API.Listen)
	}
}

// SetForTesting builds a validated-shape config without touching the filesystem.
func SetForTesting(home, endpoint, appAddress string, count int) *Config {
	cfg := Default()
	cfg.home = home
	cfg.Chain.Endpoint = endpoint
	cfg.Chain.AppAddress = appAddress
	cfg.Accounts.Count = count

	return &cfg
}
