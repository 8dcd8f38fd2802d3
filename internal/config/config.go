package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/ArkLabsHQ/bitswap/utils"
	"github.com/spf13/viper"
)

const (
	badgerDb = "badger"

	// NetworkRegtest runs swaps against the in-memory execution engine.
	NetworkRegtest = "regtest"
)

var supportedNetworks = map[string]struct{}{
	NetworkRegtest: {},
	"signet":       {},
	"testnet":      {},
	"mainnet":      {},
}

type Config struct {
	Datadir  string `mapstructure:"DATADIR" envDefault:"bitswap" envInfo:"Data directory for bitswap state"`
	DbType   string `mapstructure:"DB_TYPE" envDefault:"badger" envInfo:"Database backend: badger"`
	GRPCPort uint32 `mapstructure:"GRPC_PORT" envDefault:"7000" envInfo:"gRPC server port"`
	HTTPPort uint32 `mapstructure:"HTTP_PORT" envDefault:"7001" envInfo:"HTTP server port"`
	WithTLS  bool   `mapstructure:"WITH_TLS" envDefault:"false" envInfo:"Enable TLS on server"`
	LogLevel uint32 `mapstructure:"LOG_LEVEL" envDefault:"4" envInfo:"Log verbosity (higher = more verbose)"`

	Network    string   `mapstructure:"NETWORK" envDefault:"signet" envInfo:"Network: regtest | signet | testnet | mainnet"`
	EsploraURL string   `mapstructure:"ESPLORA_URL" envDefault:"" envInfo:"Esplora base URL used for block heights"`
	RelayURLs  []string `mapstructure:"RELAY_URLS" envDefault:"wss://relay.damus.io,wss://nos.lol" envInfo:"Comma separated nostr relays"`
	Topic      string   `mapstructure:"TOPIC" envDefault:"bitswap" envInfo:"Order book topic"`
	Mnemonic   string   `mapstructure:"MNEMONIC" envDefault:"" envInfo:"Wallet seed phrase"`
	Tokens     []string `mapstructure:"TOKENS" envDefault:"SAT,TEST,ATOM,BTC" envInfo:"Tokens accepted in swap terms"`

	OrderbookCapacity int    `mapstructure:"ORDERBOOK_CAPACITY" envDefault:"100" envInfo:"Max intents kept in the order book"`
	RefundDelta       uint32 `mapstructure:"REFUND_DELTA" envDefault:"144" envInfo:"Default refund delay in blocks"`
	PollInterval      int64  `mapstructure:"POLL_INTERVAL" envDefault:"10" envInfo:"Block height polling interval in seconds"`
	SyncInterval      int64  `mapstructure:"SYNC_INTERVAL" envDefault:"10" envInfo:"Pending swaps sync interval in seconds"`
	AutoClaim         bool   `mapstructure:"AUTO_CLAIM" envDefault:"true" envInfo:"Claim counter locks automatically"`

	NoMetrics        bool   `mapstructure:"NO_METRICS" envDefault:"false" envInfo:"Disable the /metrics endpoint"`
	DisableTelemetry bool   `mapstructure:"DISABLE_TELEMETRY" envDefault:"false" envInfo:"Disable telemetry"`
	PyroscopeURL     string `mapstructure:"PYROSCOPE_URL" envDefault:"" envInfo:"Pyroscope server URL"`
	ProfilingEnabled bool   `mapstructure:"PROFILING_ENABLED" envDefault:"false" envInfo:"Expose pprof on :6060"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("BITSWAP")
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("error setting default config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}

	if err := config.initDb(); err != nil {
		return nil, fmt.Errorf("error initializing data directory: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) IsRegtest() bool {
	return c.Network == NetworkRegtest
}

func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

func (c *Config) SyncIntervalDuration() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

// SeedFile is where a mnemonic can be dropped when none is configured.
func (c *Config) SeedFile() string {
	return filepath.Join(c.Datadir, "seed")
}

func (c *Config) validate() error {
	if _, ok := supportedNetworks[c.Network]; !ok {
		return fmt.Errorf("unsupported network: %s", c.Network)
	}

	if c.EsploraURL != "" {
		url, err := utils.ValidateURL(c.EsploraURL)
		if err != nil {
			return fmt.Errorf("invalid esplora url: %v", err)
		}
		c.EsploraURL = url
	}
	if !c.IsRegtest() && c.EsploraURL == "" {
		return fmt.Errorf("missing esplora url for network %s", c.Network)
	}

	relays := make([]string, 0, len(c.RelayURLs))
	for _, r := range c.RelayURLs {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		url, err := utils.ValidateRelayURL(r)
		if err != nil {
			return fmt.Errorf("invalid relay url %s: %v", r, err)
		}
		relays = append(relays, url)
	}
	if len(relays) == 0 {
		return fmt.Errorf("at least one relay url is required")
	}
	c.RelayURLs = relays

	if strings.TrimSpace(c.Topic) == "" {
		return fmt.Errorf("missing topic")
	}

	tokens := make([]string, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if err := htlc.Ticker(t).Validate(); err != nil {
			return fmt.Errorf("invalid token: %w", err)
		}
		tokens = append(tokens, t)
	}
	c.Tokens = tokens

	if c.Mnemonic != "" {
		if err := utils.IsValidMnemonic(c.Mnemonic); err != nil {
			return fmt.Errorf("invalid mnemonic: %w", err)
		}
	}

	if c.OrderbookCapacity <= 0 {
		return fmt.Errorf("orderbook capacity must be positive")
	}
	if c.RefundDelta == 0 {
		return fmt.Errorf("refund delta must be positive")
	}
	if c.PollInterval <= 0 || c.SyncInterval <= 0 {
		return fmt.Errorf("poll and sync intervals must be positive")
	}
	if c.GRPCPort == c.HTTPPort {
		return fmt.Errorf("grpc and http ports must differ")
	}
	return nil
}

func (c *Config) initDb() error {
	supportedDbType := map[string]struct{}{
		badgerDb: {},
	}

	if _, ok := supportedDbType[c.DbType]; !ok {
		return fmt.Errorf("unsupported db type: %s", c.DbType)
	}

	if c.Datadir == DefaultDatadir {
		c.Datadir = appDatadir(DefaultDatadir, false)
	} else {
		c.Datadir = cleanAndExpandPath(c.Datadir)
	}

	return makeDirectoryIfNotExists(c.Datadir)
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		def := f.Tag.Get("envDefault")
		if def != "" {
			v.SetDefault(key, def)
		}
		err := v.BindEnv(key)
		if err != nil {
			return fmt.Errorf("error binding env variable for key %s: %w", key, err)
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDatadir returns an operating system specific directory to be used for
// storing application data.
func appDatadir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}

	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library", "Application Support", appNameUpper)
		}

	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appNameLower)
		}

	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}

	return "."
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}

//go:generate go run ../../tools/gen-env-doc/main.go
