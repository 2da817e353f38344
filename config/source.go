package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read by EnvSource.
const EnvPrefix = "NFCSESSION_"

// Source loads configuration values into a koanf instance. Sources are
// applied in ascending Priority, later ones overriding earlier ones.
type Source interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// DefaultSource provides DefaultConfig.
type DefaultSource struct{}

func (s *DefaultSource) Name() string  { return "defaults" }
func (s *DefaultSource) Priority() int { return 10 }

func (s *DefaultSource) Load(k *koanf.Koanf) error {
	if err := k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("error loading defaults: %w", err)
	}
	return nil
}

// FileSource loads a YAML file. A missing file is skipped unless Required is set.
type FileSource struct {
	Path     string
	Required bool
}

func (s *FileSource) Name() string  { return "file:" + s.Path }
func (s *FileSource) Priority() int { return 20 }

func (s *FileSource) Load(k *koanf.Koanf) error {
	if s.Path == "" {
		return nil
	}
	if _, err := os.Stat(s.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !s.Required {
			return nil
		}
		return fmt.Errorf("error checking config file %s: %w", s.Path, err)
	}
	if err := k.Load(file.Provider(s.Path), yaml.Parser()); err != nil {
		return fmt.Errorf("error loading config file %s: %w", s.Path, err)
	}
	return nil
}

// EnvSource loads NFCSESSION_ variables. The first underscore after the
// prefix separates the section from the key:
//
//	NFCSESSION_LOG_LEVEL         -> log.level
//	NFCSESSION_NFC_READ_TIMEOUT  -> nfc.read_timeout
//	NFCSESSION_SERVER_API_SECRET -> server.api_secret
type EnvSource struct {
	Prefix string
}

func (s *EnvSource) Name() string  { return "env" }
func (s *EnvSource) Priority() int { return 30 }

func (s *EnvSource) Load(k *koanf.Koanf) error {
	prefix := s.Prefix
	if prefix == "" {
		prefix = EnvPrefix
	}
	if err := k.Load(env.ProviderWithValue(prefix, ".", func(key, value string) (string, any) {
		key = envKey(prefix, key)
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return fmt.Errorf("error loading environment variables: %w", err)
	}
	return nil
}

func envKey(prefix, key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, prefix))
	return strings.Replace(key, "_", ".", 1)
}

// listKeys are read from the environment as comma separated lists.
var listKeys = map[string]bool{
	"nfc.filters": true,
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FlagSource loads flags the user changed. Keys maps flag names to config
// keys; flags missing from Keys are ignored.
type FlagSource struct {
	Flags *pflag.FlagSet
	Keys  map[string]string
}

func (s *FlagSource) Name() string  { return "flags" }
func (s *FlagSource) Priority() int { return 40 }

func (s *FlagSource) Load(k *koanf.Koanf) error {
	if s.Flags == nil {
		return nil
	}
	provider := posflag.ProviderWithFlag(s.Flags, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := s.Keys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(s.Flags, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("error loading command-line flags: %w", err)
	}
	return nil
}

// Load applies sources by priority, unmarshals the merged values and
// validates the result.
func Load(sources ...Source) (Config, error) {
	sorted := append([]Source(nil), sources...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	k := koanf.New(".")
	for _, src := range sorted {
		if err := src.Load(k); err != nil {
			return Config{}, fmt.Errorf("source %s: %w", src.Name(), err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDefault loads defaults, the file at path (or DefaultConfigPath when
// path is empty), the environment and the changed flags.
func LoadDefault(path string, flags *pflag.FlagSet, flagKeys map[string]string) (Config, error) {
	fileSrc := &FileSource{Path: path, Required: path != ""}
	if path == "" {
		fileSrc.Path = DefaultConfigPath()
	}
	return Load(
		&DefaultSource{},
		fileSrc,
		&EnvSource{},
		&FlagSource{Flags: flags, Keys: flagKeys},
	)
}
