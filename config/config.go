package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix ist das Präfix aller Umgebungsvariablen des Gateways
const EnvPrefix = "DEEPFACE_GW"

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Images    ImagesConfig    `mapstructure:"images"`
	Inference InferenceConfig `mapstructure:"inference"`
	Journal   JournalConfig   `mapstructure:"journal"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin-Modus: debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	Language        string        `mapstructure:"language"` // Standardsprache für Info-Meldungen
	Timezone        string        `mapstructure:"timezone"`
}

// Addr liefert die Listen-Adresse im Format host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text oder json
	File   string `mapstructure:"file"`
}

// EngineConfig beschreibt den entfernten Gesichtsanalyse-Dienst
type EngineConfig struct {
	URL             string        `mapstructure:"url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Warmup          bool          `mapstructure:"warmup"` // Erreichbarkeit bei der Initialisierung prüfen
	DetectorBackend string        `mapstructure:"detector_backend"`
	DistanceMetric  string        `mapstructure:"distance_metric"`
	Align           bool          `mapstructure:"align"`
}

// ImagesConfig steuert die Behandlung eingebetteter Bilder
type ImagesConfig struct {
	TempDir       string        `mapstructure:"temp_dir"`
	MaxBytes      int64         `mapstructure:"max_bytes"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxAge        time.Duration `mapstructure:"max_age"`
}

// InferenceConfig enthält Einstellungen für die Ausführung der Inferenz
type InferenceConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"` // 0 = unbegrenzt
}

// JournalConfig enthält die Einstellungen des optionalen Anfrage-Journals
type JournalConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	File          string `mapstructure:"file"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`

	// Home Assistant MQTT Discovery
	HomeAssistant   bool   `mapstructure:"homeassistant_discovery"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// LoadWithFlags verhält sich wie Load, berücksichtigt aber zusätzlich
// gesetzte Kommandozeilen-Flags (z.B. --port)
func LoadWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Standardwerte festlegen
	setDefaults(v)

	// Konfigurationsdatei laden, wenn vorhanden
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// PORT ist die übliche Variable von PaaS-Umgebungen
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind PORT: %w", err)
	}

	if flags != nil {
		if f := flags.Lookup("port"); f != nil {
			if err := v.BindPFlag("server.port", f); err != nil {
				return nil, fmt.Errorf("failed to bind port flag: %w", err)
			}
		}
	}

	// Konfiguration in Struct umwandeln
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Sicherstellen, dass erforderliche Verzeichnisse existieren
	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// Validate prüft die Werte, die ohne sinnvolle Korrektur nicht nutzbar sind
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Engine.URL == "" {
		return fmt.Errorf("engine.url must not be empty")
	}
	if c.Images.MaxBytes <= 0 {
		return fmt.Errorf("images.max_bytes must be positive")
	}
	if c.Inference.MaxConcurrent < 0 {
		return fmt.Errorf("inference.max_concurrent must not be negative")
	}
	switch c.Server.Mode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("unknown server mode %q", c.Server.Mode)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Engine.URL = strings.TrimRight(c.Engine.URL, "/")
	return nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server-Standardwerte
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.language", "en")
	v.SetDefault("server.timezone", "UTC")

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	// Engine-Standardwerte
	v.SetDefault("engine.url", "http://localhost:5005")
	v.SetDefault("engine.timeout", 120*time.Second)
	v.SetDefault("engine.warmup", false)
	v.SetDefault("engine.detector_backend", "")
	v.SetDefault("engine.distance_metric", "")
	v.SetDefault("engine.align", true)

	// Bild-Standardwerte
	v.SetDefault("images.temp_dir", filepath.Join(os.TempDir(), "deepface-gateway"))
	v.SetDefault("images.max_bytes", 20<<20)
	v.SetDefault("images.sweep_interval", time.Hour)
	v.SetDefault("images.max_age", time.Hour)

	v.SetDefault("inference.max_concurrent", 0)

	// Journal-Standardwerte
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.file", "/data/deepface-gateway.db")
	v.SetDefault("journal.retention_days", 7)

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "deepface-gateway")
	v.SetDefault("mqtt.topic_prefix", "deepface-gateway")
	v.SetDefault("mqtt.homeassistant_discovery", false)
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	// Verzeichnis für temporäre Bilder
	if err := os.MkdirAll(cfg.Images.TempDir, 0o700); err != nil {
		return fmt.Errorf("failed to create temp image directory: %w", err)
	}

	// Log-Verzeichnis
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Datenbank-Verzeichnis (nur mit aktivem Journal)
	if cfg.Journal.Enabled && cfg.Journal.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.File), 0o755); err != nil {
			return fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	return nil
}
