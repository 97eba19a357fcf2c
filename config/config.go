package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Strategy StrategyConfig `yaml:"strategy"`
	Timing   TimingConfig   `yaml:"timing"`
	API      APIConfig      `yaml:"api"`
	Journal  JournalConfig  `yaml:"journal"`
	Log      LogConfig      `yaml:"log"`

	// Credentials solo se cargan de variables de entorno, nunca del YAML.
	Credentials Credentials `yaml:"-"`
	Telegram    Telegram    `yaml:"-"`
	HealthPort  int         `yaml:"-"`
}

// StrategyConfig parameterises the ladder strategy.
type StrategyConfig struct {
	// Buy prices in dollars, ascending.
	LadderLevels []float64 `yaml:"ladder_levels"`
	// Entry price → exit price. Keys are quantised to cents internally.
	ExitPrices map[float64]float64 `yaml:"exit_prices"`
	// Shares per ladder rung.
	OrderSize float64 `yaml:"order_size"`

	StopLossPrice   float64   `yaml:"stop_loss_price"`
	StopLossEntries []float64 `yaml:"stop_loss_entries"`

	// Exchange rule: price × size ≥ MinNotional per order.
	MinNotional float64 `yaml:"min_notional"`
	// Defensive floor in shares, absorbs float edge cases at low prices.
	MinShares float64 `yaml:"min_shares"`

	// Rungs at or above this price are status-checked every tick.
	HighPriorityPrice float64 `yaml:"high_priority_price"`
	// Consecutive failed status reads before alerting.
	APIFailAlertCount int `yaml:"api_fail_alert_count"`
	// Reloads per rung per event (bounds order flow in pre-market).
	MaxReloadsPerRung int `yaml:"max_reloads_per_rung"`

	PendingSettlementCap int `yaml:"pending_settlement_cap"`
	PendingGenericCap    int `yaml:"pending_generic_cap"`
}

// TimingConfig controla el ritmo del loop principal.
type TimingConfig struct {
	PollIntervalMs   int `yaml:"poll_interval_ms"`
	ScanIntervalSecs int `yaml:"scan_interval_secs"`
	HeartbeatSecs    int `yaml:"heartbeat_secs"`
	LookAheadHours   int `yaml:"look_ahead_hours"`
	MaxEvents        int `yaml:"max_events"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	RPCURL    string `yaml:"rpc_url"`
}

// JournalConfig controla el trade journal en SQLite.
type JournalConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, vacío = deshabilitado
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Credentials son las credenciales del wallet y del CLOB (.env).
type Credentials struct {
	PrivateKey     string
	FunderAddress  string
	CLOBAPIKey     string
	CLOBSecret     string
	CLOBPassphrase string
}

// Telegram credentials (.env). Empty token disables the notifier.
type Telegram struct {
	BotToken string
	ChatID   string
}

// Load carga la configuración desde el archivo YAML y el .env si existe.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Validate comprueba las credenciales obligatorias. Fatal en arranque.
func (c *Config) Validate() error {
	if c.Credentials.PrivateKey == "" {
		return fmt.Errorf("config: missing PRIVATE_KEY")
	}
	if c.Credentials.FunderAddress == "" {
		return fmt.Errorf("config: missing FUNDER_ADDRESS")
	}
	return nil
}

// PollInterval devuelve el intervalo de polling como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timing.PollIntervalMs) * time.Millisecond
}

// ScanInterval devuelve el intervalo de escaneo de eventos.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Timing.ScanIntervalSecs) * time.Second
}

// HeartbeatInterval devuelve el intervalo del heartbeat.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Timing.HeartbeatSecs) * time.Second
}

// ExitPricesCents re-keys the exit table to integer cents, defending against
// YAML float drift (0.47 parsed as 0.47000000000000003 etc.).
func (c *Config) ExitPricesCents() map[int]float64 {
	out := make(map[int]float64, len(c.Strategy.ExitPrices))
	for entry, exit := range c.Strategy.ExitPrices {
		out[Cents(entry)] = exit
	}
	return out
}

// Cents quantises a dollar price to integer cents.
func Cents(price float64) int {
	return int(math.Round(price * 100))
}

// applyEnvOverrides lee credenciales y overrides de entorno.
func applyEnvOverrides(cfg *Config) {
	cfg.Credentials = Credentials{
		PrivateKey:     os.Getenv("PRIVATE_KEY"),
		FunderAddress:  os.Getenv("FUNDER_ADDRESS"),
		CLOBAPIKey:     os.Getenv("CLOB_API_KEY"),
		CLOBSecret:     os.Getenv("CLOB_API_SECRET"),
		CLOBPassphrase: os.Getenv("CLOB_PASSPHRASE"),
	}
	cfg.Telegram = Telegram{
		BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			cfg.HealthPort = port
		}
	}
}

// setDefaults asegura que todos los valores requeridos tengan defaults sensatos.
func setDefaults(cfg *Config) {
	s := &cfg.Strategy
	if len(s.LadderLevels) == 0 {
		s.LadderLevels = []float64{0.40, 0.41, 0.42, 0.43, 0.44, 0.45, 0.46, 0.47, 0.48}
	}
	if len(s.ExitPrices) == 0 {
		s.ExitPrices = map[float64]float64{
			0.48: 0.49,
			0.47: 0.48,
			0.46: 0.48,
			0.45: 0.47,
			0.44: 0.47,
			0.43: 0.47,
			0.42: 0.47,
			0.41: 0.47,
			0.40: 0.47,
			0.39: 0.45,
			0.38: 0.45,
			0.37: 0.45,
		}
	}
	if s.OrderSize <= 0 {
		s.OrderSize = 30.0
	}
	if s.StopLossPrice <= 0 {
		s.StopLossPrice = 0.18
	}
	if len(s.StopLossEntries) == 0 {
		s.StopLossEntries = []float64{0.48}
	}
	if s.MinNotional <= 0 {
		s.MinNotional = 1.0
	}
	if s.MinShares <= 0 {
		s.MinShares = 5.0
	}
	if s.HighPriorityPrice <= 0 {
		s.HighPriorityPrice = 0.46
	}
	if s.APIFailAlertCount <= 0 {
		s.APIFailAlertCount = 20
	}
	if s.MaxReloadsPerRung <= 0 {
		s.MaxReloadsPerRung = 20
	}
	if s.PendingSettlementCap <= 0 {
		s.PendingSettlementCap = 60
	}
	if s.PendingGenericCap <= 0 {
		s.PendingGenericCap = 10
	}

	t := &cfg.Timing
	if t.PollIntervalMs <= 0 {
		t.PollIntervalMs = 500
	}
	if t.ScanIntervalSecs <= 0 {
		t.ScanIntervalSecs = 60
	}
	if t.HeartbeatSecs <= 0 {
		t.HeartbeatSecs = 30
	}
	if t.LookAheadHours <= 0 {
		t.LookAheadHours = 24
	}
	if t.MaxEvents <= 0 {
		t.MaxEvents = 2
	}

	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.RPCURL == "" {
		cfg.API.RPCURL = "https://polygon-rpc.com"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.HealthPort <= 0 {
		cfg.HealthPort = 8080
	}
}
