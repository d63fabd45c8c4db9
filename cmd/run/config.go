package run

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/go-micro/plugins/v4/config/encoder/toml"
	"go-micro.dev/v4/config"
	"go-micro.dev/v4/config/reader"
	"go-micro.dev/v4/config/reader/json"
	"go-micro.dev/v4/config/source"
	"go-micro.dev/v4/config/source/file"
)

// Settings are the values read from config.toml.
type Settings struct {
	LogLevel string
	LogFile  string
	Output   string
	Headless bool
	Timeout  time.Duration
	Rate     float64
	Burst    int
	Proxy    []string
	Bin      string
}

var DefaultSettings = Settings{
	LogLevel: "INFO",
	Headless: true,
	Timeout:  25 * time.Second,
	Burst:    1,
}

// LoadSettings reads path. A missing file yields DefaultSettings unless
// required is set.
func LoadSettings(path string, required bool) (Settings, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !required {
		return DefaultSettings, nil
	}

	enc := toml.NewEncoder()
	cfg, err := config.NewConfig(config.WithReader(json.NewReader(reader.WithEncoder(enc))))
	if err != nil {
		return Settings{}, err
	}
	defer cfg.Close()
	if err := cfg.Load(file.NewSource(file.WithPath(path), source.WithEncoder(enc))); err != nil {
		return Settings{}, err
	}

	d := DefaultSettings
	return Settings{
		LogLevel: cfg.Get("logLevel").String(d.LogLevel),
		LogFile:  cfg.Get("logFile").String(d.LogFile),
		Output:   cfg.Get("output").String(d.Output),
		Headless: cfg.Get("browser", "headless").Bool(d.Headless),
		Timeout:  time.Duration(cfg.Get("browser", "timeout").Int(int(d.Timeout/time.Millisecond))) * time.Millisecond,
		Rate:     cfg.Get("browser", "rate").Float64(d.Rate),
		Burst:    cfg.Get("browser", "burst").Int(d.Burst),
		Proxy:    cfg.Get("browser", "proxy").StringSlice([]string{}),
		Bin:      cfg.Get("browser", "bin").String(d.Bin),
	}, nil
}
