// Package config loads the agent configuration from defaults, a YAML file,
// NFCSESSION_ environment variables and command-line flags, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nedpals/nfc-session/buildinfo"
	"github.com/nedpals/nfc-session/nfc"
	"github.com/nedpals/nfc-session/server"
)

// Config is the complete agent configuration.
type Config struct {
	Log    LogConfig    `koanf:"log"`
	NFC    NFCConfig    `koanf:"nfc"`
	Server ServerConfig `koanf:"server"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
	File   string `koanf:"file"`
}

// NFCConfig maps onto nfc.Options plus the reader selection.
type NFCConfig struct {
	Device          string        `koanf:"device"`
	Mock            bool          `koanf:"mock"`
	PollInterval    time.Duration `koanf:"poll_interval" validate:"gt=0"`
	ContinuousRead  bool          `koanf:"continuous_read"`
	NotifyUser      bool          `koanf:"notify_user"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	MaxAttempts     int           `koanf:"max_attempts" validate:"min=1,max=10"`
	RetryBackoff    time.Duration `koanf:"retry_backoff" validate:"gt=0"`
	RetryDataAbsent bool          `koanf:"retry_data_absent"`
	MimeType        string        `koanf:"mime_type" validate:"required"`
	DefaultPayload  string        `koanf:"default_payload"`
	Filters         []string      `koanf:"filters" validate:"dive,cardtype"`
}

// ServerConfig controls the observer server.
type ServerConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Host      string `koanf:"host" validate:"required"`
	Port      int    `koanf:"port" validate:"min=1,max=65535"`
	APISecret string `koanf:"api_secret"`
	MDNS      bool   `koanf:"mdns"`
}

// DefaultConfig returns the configuration used when no other source sets a value.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		NFC: NFCConfig{
			PollInterval:   nfc.DefaultPollInterval,
			NotifyUser:     true,
			ReadTimeout:    nfc.DefaultOpTimeout,
			WriteTimeout:   nfc.DefaultOpTimeout,
			MaxAttempts:    nfc.DefaultMaxAttempts,
			RetryBackoff:   nfc.DefaultRetryBackoff,
			MimeType:       nfc.DefaultMimeType,
			DefaultPayload: nfc.DefaultPayload,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    server.DefaultHost,
			Port:    server.DefaultPort,
		},
	}
}

// DefaultConfigAsMap flattens DefaultConfig into koanf keys so that every
// key exists before files, env and flags are layered on top.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"nfc.device":            def.NFC.Device,
		"nfc.mock":              def.NFC.Mock,
		"nfc.poll_interval":     def.NFC.PollInterval,
		"nfc.continuous_read":   def.NFC.ContinuousRead,
		"nfc.notify_user":       def.NFC.NotifyUser,
		"nfc.read_timeout":      def.NFC.ReadTimeout,
		"nfc.write_timeout":     def.NFC.WriteTimeout,
		"nfc.max_attempts":      def.NFC.MaxAttempts,
		"nfc.retry_backoff":     def.NFC.RetryBackoff,
		"nfc.retry_data_absent": def.NFC.RetryDataAbsent,
		"nfc.mime_type":         def.NFC.MimeType,
		"nfc.default_payload":   def.NFC.DefaultPayload,
		"nfc.filters":           def.NFC.Filters,

		"server.enabled":    def.Server.Enabled,
		"server.host":       def.Server.Host,
		"server.port":       def.Server.Port,
		"server.api_secret": def.Server.APISecret,
		"server.mdns":       def.Server.MDNS,
	}
}

// DefaultConfigPath returns the config file looked up when --config is not
// given, e.g. ~/.config/nfc-session/config.yaml on Linux.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, buildinfo.DirName, "config.yaml")
}

// Validate checks every field against its validate tag.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.RegisterValidation("cardtype", func(fl validator.FieldLevel) bool {
		return slices.Contains(nfc.GetAllCardTypes(), fl.Field().String())
	}); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ControllerOptions converts the NFC section into controller options. Clock,
// Logger and Notifier are left for the caller. An empty default payload
// falls back to nfc.DefaultPayload.
func (c NFCConfig) ControllerOptions() nfc.Options {
	var payload []byte
	if c.DefaultPayload != "" {
		payload = []byte(c.DefaultPayload)
	}
	return nfc.Options{
		ContinuousRead:  c.ContinuousRead,
		NotifyUser:      c.NotifyUser,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		MaxAttempts:     c.MaxAttempts,
		RetryBackoff:    c.RetryBackoff,
		RetryDataAbsent: c.RetryDataAbsent,
		MimeType:        c.MimeType,
		DefaultPayload:  payload,
		Filters:         c.Filters,
	}
}
