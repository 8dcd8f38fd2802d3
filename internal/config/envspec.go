package config

import "fmt"

const (
	Datadir           = "DATADIR"
	DbType            = "DB_TYPE"
	GRPCPort          = "GRPC_PORT"
	HTTPPort          = "HTTP_PORT"
	WithTLS           = "WITH_TLS"
	LogLevel          = "LOG_LEVEL"
	Network           = "NETWORK"
	EsploraURL        = "ESPLORA_URL"
	RelayURLs         = "RELAY_URLS"
	Topic             = "TOPIC"
	Mnemonic          = "MNEMONIC"
	Tokens            = "TOKENS"
	OrderbookCapacity = "ORDERBOOK_CAPACITY"
	RefundDelta       = "REFUND_DELTA"
	PollInterval      = "POLL_INTERVAL"
	SyncInterval      = "SYNC_INTERVAL"
	AutoClaim         = "AUTO_CLAIM"
	NoMetrics         = "NO_METRICS"
	DisableTelemetry  = "DISABLE_TELEMETRY"
	PyroscopeURL      = "PYROSCOPE_URL"
	ProfilingEnabled  = "PROFILING_ENABLED"
)

const (
	DefaultDatadir           = "bitswap"
	DefaultDbType            = "badger"
	DefaultGRPCPort          = 7000
	DefaultHTTPPort          = 7001
	DefaultWithTLS           = false
	DefaultLogLevel          = 4
	DefaultNetwork           = "signet"
	DefaultRelayURLs         = "wss://relay.damus.io,wss://nos.lol"
	DefaultTopic             = "bitswap"
	DefaultTokens            = "SAT,TEST,ATOM,BTC"
	DefaultOrderbookCapacity = 100
	DefaultRefundDelta       = 144
	DefaultPollInterval      = 10
	DefaultSyncInterval      = 10
	DefaultAutoClaim         = true
	DefaultNoMetrics         = false
	DefaultDisableTelemetry  = false
	DefaultProfilingEnabled  = false
)

type EnvVar struct {
	Name        string // short name under the BITSWAP_ prefix (e.g., "DATADIR")
	FullName    string // e.g., "BITSWAP_DATADIR"
	Type        string // human-readable type
	Default     string // default value as a string ("" if none)
	Description string // one-liner for docs
	Notes       string // optional: constraints, examples, etc.
}

func EnvSpecs() []EnvVar {
	const P = "BITSWAP_"

	return []EnvVar{
		{
			Name:        Datadir,
			FullName:    P + Datadir,
			Type:        "string (path)",
			Default:     DefaultDatadir,
			Description: "Data directory for bitswap state",
		},
		{
			Name:        DbType,
			FullName:    P + DbType,
			Type:        "string",
			Default:     DefaultDbType,
			Description: "Database backend: badger",
		},
		{
			Name:        GRPCPort,
			FullName:    P + GRPCPort,
			Type:        "uint32 (port)",
			Default:     fmt.Sprintf("%d", DefaultGRPCPort),
			Description: "gRPC server port (health service)",
		},
		{
			Name:        HTTPPort,
			FullName:    P + HTTPPort,
			Type:        "uint32 (port)",
			Default:     fmt.Sprintf("%d", DefaultHTTPPort),
			Description: "HTTP server port",
		},
		{
			Name:        WithTLS,
			FullName:    P + WithTLS,
			Type:        "bool",
			Default:     fmt.Sprintf("%v", DefaultWithTLS),
			Description: "Enable TLS on server",
		},
		{
			Name:        LogLevel,
			FullName:    P + LogLevel,
			Type:        "uint32 (0–6)",
			Default:     fmt.Sprintf("%d", DefaultLogLevel),
			Description: "Log verbosity (higher = more verbose)",
		},
		{
			Name:        Network,
			FullName:    P + Network,
			Type:        "string",
			Default:     DefaultNetwork,
			Description: "Network: regtest | signet | testnet | mainnet",
			Notes:       "regtest runs against a local in-memory execution engine.",
		},
		{
			Name:        EsploraURL,
			FullName:    P + EsploraURL,
			Type:        "string (URL)",
			Default:     "",
			Description: "Esplora base URL used for block heights",
			Notes:       "Required unless NETWORK=regtest.",
		},
		{
			Name:        RelayURLs,
			FullName:    P + RelayURLs,
			Type:        "[]string (WS URLs)",
			Default:     DefaultRelayURLs,
			Description: "Comma separated nostr relays used as order book",
		},
		{
			Name:        Topic,
			FullName:    P + Topic,
			Type:        "string",
			Default:     DefaultTopic,
			Description: "Order book topic",
		},
		{
			Name:        Mnemonic,
			FullName:    P + Mnemonic,
			Type:        "string",
			Default:     "",
			Description: "Wallet seed phrase",
			Notes:       "If unset, the seed is read from DATADIR/seed.",
		},
		{
			Name:        Tokens,
			FullName:    P + Tokens,
			Type:        "[]string",
			Default:     DefaultTokens,
			Description: "Tokens accepted in swap terms",
		},
		{
			Name:        OrderbookCapacity,
			FullName:    P + OrderbookCapacity,
			Type:        "int",
			Default:     fmt.Sprintf("%d", DefaultOrderbookCapacity),
			Description: "Max intents kept in the order book",
		},
		{
			Name:        RefundDelta,
			FullName:    P + RefundDelta,
			Type:        "uint32 (blocks)",
			Default:     fmt.Sprintf("%d", DefaultRefundDelta),
			Description: "Default refund delay in blocks",
		},
		{
			Name:        PollInterval,
			FullName:    P + PollInterval,
			Type:        "int64 (seconds)",
			Default:     fmt.Sprintf("%d", DefaultPollInterval),
			Description: "Block height polling interval",
		},
		{
			Name:        SyncInterval,
			FullName:    P + SyncInterval,
			Type:        "int64 (seconds)",
			Default:     fmt.Sprintf("%d", DefaultSyncInterval),
			Description: "Pending swaps sync interval",
		},
		{
			Name:        AutoClaim,
			FullName:    P + AutoClaim,
			Type:        "bool",
			Default:     fmt.Sprintf("%v", DefaultAutoClaim),
			Description: "Claim counter locks automatically",
		},
		{
			Name:        NoMetrics,
			FullName:    P + NoMetrics,
			Type:        "bool",
			Default:     fmt.Sprintf("%v", DefaultNoMetrics),
			Description: "Disable the /metrics endpoint",
		},
		{
			Name:        DisableTelemetry,
			FullName:    P + DisableTelemetry,
			Type:        "bool",
			Default:     fmt.Sprintf("%v", DefaultDisableTelemetry),
			Description: "Disable telemetry collection",
		},
		{
			Name:        PyroscopeURL,
			FullName:    P + PyroscopeURL,
			Type:        "string (URL)",
			Default:     "",
			Description: "Pyroscope server URL for continuous profiling",
		},
		{
			Name:        ProfilingEnabled,
			FullName:    P + ProfilingEnabled,
			Type:        "bool",
			Default:     fmt.Sprintf("%v", DefaultProfilingEnabled),
			Description: "Expose pprof on :6060",
		},
	}
}

//go:generate go run ../../tools/gen-env-doc/main.go
