// Package config loads the full configuration surface from the process
// environment (and an optional YAML threshold overlay), following the
// teacher's os.Getenv-plus-strconv-plus-default pattern generalized to
// every option the pipeline recognizes.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GateThresholds holds the chain-parameterized Hard Gate / Exit Gate
// thresholds. Load fills them from hardcoded defaults, optionally
// overlaid by the YAML file named in GATE_THRESHOLDS_FILE so operators can
// version-control tuning without redeploying.
type GateThresholds struct {
	MinLiquidityUSD      float64 `yaml:"min_liquidity_usd"`
	MinHolders           int     `yaml:"min_holders"`
	MaxTop10Pct          float64 `yaml:"max_top10_pct"`
	MaxTop10PctBonding   float64 `yaml:"max_top10_pct_bonding"`
	MaxSlippageBps       float64 `yaml:"max_slippage_bps"`
	MaxTaxPct            float64 `yaml:"max_tax_pct"`
	MinLiquidityNative   float64 `yaml:"min_liquidity_native"`
	ExitSlippageRejectPc float64 `yaml:"exit_slippage_reject_pct"`
	ExitSlippageGreyPct  float64 `yaml:"exit_slippage_grey_pct"`
}

// Config is the full configuration surface named in SPEC_FULL.md §6.
type Config struct {
	// Runtime mode
	ShadowMode      bool
	AutoBuyEnabled  bool
	AdapterMaxQueue int

	// Risk manager / capital
	MaxConcurrentPositions int
	MaxPositionPercent     float64
	TotalCapitalSOL        float64
	TotalCapitalBNB        float64
	LossStreakPause        int
	PauseHours             float64
	MinStatsTrades         int
	WinRateFloor           float64

	// Position monitor
	StopLossPct            float64
	BreakevenTriggerPct    float64
	BreakevenSellPct       float64
	TimeStopSOLMinutes     int
	TimeStopBSCMinutes     int
	MonitorPoll            time.Duration
	LiquidityCrashThresh   float64
	DevDumpPct             float64
	SmartMoneyExodusPctPts float64
	HeatDecayRatio         float64
	Phase2TopHolderDropPts float64
	SidewaysMinutes        float64
	DrawdownFromHWMPct     float64

	// Validator / scoring
	AggregationWindow time.Duration
	SignalExpiry      time.Duration
	HeatWindow        time.Duration
	ScoreTimeout      time.Duration
	SourceDedupWindow time.Duration
	GlobalDedupWindow time.Duration
	BusCapacity       int
	ScoringWorkers    int

	// Snapshot service
	CacheTTL        time.Duration
	ProviderRPS     float64
	ProviderBurst   int
	SnapshotTimeout time.Duration

	// Gate thresholds, SOL and BSC
	GatesSOL GateThresholds
	GatesBSC GateThresholds

	// TopHolderExclusions are known DEX/curve/burn addresses the Chain
	// Snapshot Service excludes from Top-10 concentration counting
	// (SPEC_FULL §4.3: a configured set, not hardcoded logic).
	TopHolderExclusions []string

	// External integrations
	BinanceAPIKey      string
	BinanceAPISecret   string
	TelegramBotToken   string
	TelegramChatID     int64
	FirebaseCredsFile  string
	ShutdownGrace      time.Duration
	HTTPListenAddr     string
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDurationSeconds(key string, defSeconds float64) time.Duration {
	secs := getEnvFloat(key, defSeconds)
	return time.Duration(secs * float64(time.Second))
}

func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultGates() GateThresholds {
	return GateThresholds{
		MinLiquidityUSD:      5000,
		MinHolders:           50,
		MaxTop10Pct:          30,
		MaxTop10PctBonding:   25,
		MaxSlippageBps:       500,
		MaxTaxPct:            10,
		MinLiquidityNative:   1,
		ExitSlippageRejectPc: 5,
		ExitSlippageGreyPct:  2,
	}
}

// Load reads .env (if present) then the process environment, mirroring the
// teacher's config/loader.go warn-and-continue behavior on a missing file.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, relying on system environment variables")
	}

	gatesSOL := defaultGates()
	gatesBSC := defaultGates()
	gatesBSC.ExitSlippageRejectPc = 8
	gatesBSC.ExitSlippageGreyPct = 3

	cfg := &Config{
		ShadowMode:      getEnvBool("SHADOW_MODE", true),
		AutoBuyEnabled:  getEnvBool("AUTO_BUY_ENABLED", false),
		AdapterMaxQueue: getEnvInt("ADAPTER_MAX_QUEUE", 256),

		MaxConcurrentPositions: getEnvInt("MAX_CONCURRENT_POSITIONS", 3),
		MaxPositionPercent:     getEnvFloat("MAX_POSITION_PERCENT", 0.02),
		TotalCapitalSOL:        getEnvFloat("TOTAL_CAPITAL_SOL", 10),
		TotalCapitalBNB:        getEnvFloat("TOTAL_CAPITAL_BNB", 5),
		LossStreakPause:        getEnvInt("LOSS_STREAK_PAUSE", 3),
		PauseHours:             getEnvFloat("PAUSE_HOURS", 24),
		MinStatsTrades:         getEnvInt("MIN_STATS_TRADES", 10),
		WinRateFloor:           getEnvFloat("WIN_RATE_FLOOR", 0.35),

		StopLossPct:            getEnvFloat("STOP_LOSS_PCT", -50),
		BreakevenTriggerPct:    getEnvFloat("BREAKEVEN_TRIGGER_PCT", 100),
		BreakevenSellPct:       getEnvFloat("BREAKEVEN_SELL_PCT", 50),
		TimeStopSOLMinutes:     getEnvInt("TIME_STOP_SOL_MINUTES", 60),
		TimeStopBSCMinutes:     getEnvInt("TIME_STOP_BSC_MINUTES", 120),
		MonitorPoll:            getEnvDurationSeconds("MONITOR_POLL", 60),
		LiquidityCrashThresh:   getEnvFloat("LIQUIDITY_CRASH_THRESHOLD", 0.5),
		DevDumpPct:             getEnvFloat("DEV_DUMP_PCT", 10),
		SmartMoneyExodusPctPts: getEnvFloat("SMART_MONEY_EXODUS_PCT_POINTS", 30),
		HeatDecayRatio:         getEnvFloat("HEAT_DECAY_RATIO", 0.4),
		Phase2TopHolderDropPts: getEnvFloat("PHASE2_TOP_HOLDER_DROP_PTS", 15),
		SidewaysMinutes:        getEnvFloat("SIDEWAYS_MINUTES", 30),
		DrawdownFromHWMPct:     getEnvFloat("DRAWDOWN_FROM_HWM_PCT", 0.5),

		AggregationWindow: getEnvDurationSeconds("AGGREGATION_WINDOW", 600),
		SignalExpiry:      getEnvDurationSeconds("SIGNAL_EXPIRY", 1800),
		HeatWindow:        getEnvDurationSeconds("HEAT_WINDOW", 900),
		ScoreTimeout:      getEnvDurationSeconds("SCORE_TIMEOUT", 5),
		SourceDedupWindow: getEnvDurationSeconds("SOURCE_DEDUP_WINDOW", 1800),
		GlobalDedupWindow: getEnvDurationSeconds("GLOBAL_DEDUP_WINDOW", 60),
		BusCapacity:       getEnvInt("BUS_CAPACITY", 1024),
		ScoringWorkers:    getEnvInt("SCORING_WORKERS", 4),

		CacheTTL:        getEnvDurationSeconds("CACHE_TTL", 60),
		ProviderRPS:     getEnvFloat("PROVIDER_RPS", 10),
		ProviderBurst:   getEnvInt("PROVIDER_BURST", 5),
		SnapshotTimeout: getEnvDurationSeconds("SNAPSHOT_TIMEOUT", 10),

		GatesSOL: gatesSOL,
		GatesBSC: gatesBSC,

		TopHolderExclusions: splitCSV(os.Getenv("TOP_HOLDER_EXCLUSIONS")),

		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_API_SECRET"),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		FirebaseCredsFile: getEnvString("FIREBASE_CREDENTIALS_FILE", "serviceAccountKey.json"),
		ShutdownGrace:     getEnvDurationSeconds("SHUTDOWN_GRACE", 10),
		HTTPListenAddr:    getEnvString("HTTP_LISTEN_ADDR", ":8090"),
	}
	if chatIDStr := os.Getenv("TELEGRAM_CHAT_ID"); chatIDStr != "" {
		if id, err := strconv.ParseInt(chatIDStr, 10, 64); err == nil {
			cfg.TelegramChatID = id
		}
	}

	if overlay := os.Getenv("GATE_THRESHOLDS_FILE"); overlay != "" {
		cfg.applyYAMLOverlay(overlay)
	}

	if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		log.Println("⚠️  Binance credentials missing; Momentum axis will operate on unknown data only")
	}

	return cfg
}

type overlayFile struct {
	SOL GateThresholds `yaml:"sol"`
	BSC GateThresholds `yaml:"bsc"`
}

// applyYAMLOverlay lets operators tune per-chain gate thresholds via a
// version-controlled file instead of redeploying with new env vars,
// grounded in ChoSanghyuk-blackholedex's use of gopkg.in/yaml.v3.
func (c *Config) applyYAMLOverlay(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("⚠️  gate threshold overlay %q not readable: %v", path, err)
		return
	}
	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		log.Printf("⚠️  gate threshold overlay %q invalid: %v", path, err)
		return
	}
	if overlay.SOL != (GateThresholds{}) {
		c.GatesSOL = overlay.SOL
	}
	if overlay.BSC != (GateThresholds{}) {
		c.GatesBSC = overlay.BSC
	}
}
