package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrMissingField = errors.New("missing required configuration")

const (
	defaultPrinterPort  = 3030
	defaultMQTTPort     = 1883
	defaultReadInterval = 5
	defaultMaxFiles     = 20
)

// Config is the bridge configuration. Keys match the flat config.json the
// desktop bridge has always written, so existing files load unchanged.
type Config struct {
	PrinterIP    string `json:"printer_ip" toml:"printer_ip"`
	PrinterPort  int    `json:"printer_port" toml:"printer_port"`
	MainboardID  string `json:"mainboard_id" toml:"mainboard_id"`
	MQTTBroker   string `json:"mqtt_broker" toml:"mqtt_broker"`
	MQTTPort     int    `json:"mqtt_port" toml:"mqtt_port"`
	APIKey       string `json:"api_key" toml:"api_key"`
	ReadInterval int    `json:"read_interval" toml:"read_interval"`
	MaxFiles     int    `json:"max_files_to_mqtt" toml:"max_files_to_mqtt"`
	WorkDir      string `json:"work_dir,omitempty" toml:"work_dir"`
	MetricsAddr  string `json:"metrics_addr,omitempty" toml:"metrics_addr"`
	LogLevel     string `json:"log_level,omitempty" toml:"log_level"`
}

func Default() *Config {
	return &Config{
		PrinterIP:    "192.168.0.100",
		PrinterPort:  defaultPrinterPort,
		MQTTPort:     defaultMQTTPort,
		ReadInterval: defaultReadInterval,
		MaxFiles:     defaultMaxFiles,
		WorkDir:      filepath.Join(Dir(), "gcode"),
		LogLevel:     "info",
	}
}

// PrinterAddr is the host:port of the printer's websocket and HTTP endpoints.
func (c *Config) PrinterAddr() string {
	return net.JoinHostPort(c.PrinterIP, strconv.Itoa(c.PrinterPort))
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.ReadInterval) * time.Second
}

// Validate refuses a bridge start without the fields every frame and topic
// depends on.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.PrinterIP) == "" {
		missing = append(missing, "printer_ip")
	}
	if strings.TrimSpace(c.MainboardID) == "" {
		missing = append(missing, "mainboard_id")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if strings.TrimSpace(c.MQTTBroker) == "" {
		missing = append(missing, "mqtt_broker")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}

	return nil
}

func LoadOrCreateDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if errSave := Save(path, cfg); errSave != nil {
			return nil, errSave
		}
		return cfg, nil
	}

	return Load(path)
}

// Load reads path over the defaults. Files ending in .toml are decoded as
// TOML, everything else as JSON.
func Load(path string) (*Config, error) {
	cfg := Default()

	if isTOML(path) {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err = json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.normalize()

	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if isTOML(path) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()

		return toml.NewEncoder(f).Encode(cfg)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) normalize() {
	c.PrinterIP = strings.TrimSpace(c.PrinterIP)
	c.MainboardID = strings.TrimSpace(c.MainboardID)
	c.MQTTBroker = strings.TrimSpace(c.MQTTBroker)

	if c.PrinterPort <= 0 {
		c.PrinterPort = defaultPrinterPort
	}
	if c.MQTTPort <= 0 {
		c.MQTTPort = defaultMQTTPort
	}
	if c.ReadInterval <= 0 {
		c.ReadInterval = defaultReadInterval
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = defaultMaxFiles
	}
	if strings.TrimSpace(c.WorkDir) == "" {
		c.WorkDir = filepath.Join(Dir(), "gcode")
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func Dir() string {
	programData := os.Getenv("ProgramData")
	if runtime.GOOS == "windows" {
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		return filepath.Join(programData, "PrinterBridge")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}

	return filepath.Join(configDir, "printer-bridge")
}

func LogDir() string {
	return filepath.Join(Dir(), "logs")
}

func Path() string {
	return filepath.Join(Dir(), "config.json")
}
