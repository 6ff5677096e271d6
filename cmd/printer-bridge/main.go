package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/NowakAdmin/PrinterBridge/internal/autostart"
	"github.com/NowakAdmin/PrinterBridge/internal/bridge"
	"github.com/NowakAdmin/PrinterBridge/internal/cloud"
	"github.com/NowakAdmin/PrinterBridge/internal/config"
	"github.com/NowakAdmin/PrinterBridge/internal/device"
	"github.com/NowakAdmin/PrinterBridge/internal/logger"
	"github.com/NowakAdmin/PrinterBridge/internal/metrics"
	"github.com/NowakAdmin/PrinterBridge/internal/version"
)

const usage = `usage: printer-bridge [command] [flags]

commands:
  run         run the bridge (default)
  configure   update and save configuration
  probe       check the printer websocket endpoint
  discover    read the mainboard id from the printer (-save stores it)
  autostart   enable | disable | status
  version     print the version
`

func main() {
	command, args := "run", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "run":
		runBridge(args)
	case "configure":
		runConfigure(args)
	case "probe":
		runProbe(args)
	case "discover":
		runDiscover(args)
	case "autostart":
		runAutostart(args)
	case "version":
		fmt.Printf("printer-bridge %s\n", version.Version)
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", config.Path(), "path to the configuration file (.json or .toml)")
}

func loadConfig(path string) *config.Config {
	cfg, err := config.LoadOrCreateDefault(path)
	if err != nil {
		fail("configuration error: %v", err)
	}

	return cfg
}

func runBridge(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	path := configFlag(fs)
	_ = fs.Parse(args)

	cfg := loadConfig(*path)

	log, closeFn, err := buildLogger(cfg)
	if err != nil {
		fail("logger error: %v", err)
	}
	defer closeFn()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg, m := metrics.NewRegistry()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, logger.WithComponent(log, "metrics")); err != nil {
				log.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	dev := device.NewLink(cfg.PrinterAddr(), logger.WithComponent(log, "device"), m)
	cl := cloud.NewLink(cloud.Options{
		Broker: cfg.MQTTBroker,
		Port:   cfg.MQTTPort,
		APIKey: cfg.APIKey,
		Topics: cloud.Topics{APIKey: cfg.APIKey, DeviceID: cfg.MainboardID},
	}, logger.WithComponent(log, "cloud"), m)
	uploader := device.NewUploader(cfg.PrinterAddr(), logger.WithComponent(log, "uploader"))

	b := bridge.New(cfg, dev, cl, uploader, logger.WithComponent(log, "bridge"), m)
	if err := b.Start(ctx); err != nil {
		log.Error().Err(err).Str("config", *path).Msg("bridge not started")
		closeFn()
		os.Exit(1)
	}

	<-ctx.Done()
	b.Stop()
}

func runConfigure(args []string) {
	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	path := configFlag(fs)
	printerIP := fs.String("printer-ip", "", "printer host")
	printerPort := fs.Int("printer-port", 0, "printer websocket/HTTP port")
	mainboardID := fs.String("mainboard-id", "", "printer mainboard id")
	broker := fs.String("broker", "", "MQTT broker host")
	brokerPort := fs.Int("broker-port", 0, "MQTT broker port")
	apiKey := fs.String("api-key", "", "cloud API key")
	interval := fs.Int("interval", 0, "telemetry interval in seconds")
	maxFiles := fs.Int("max-files", 0, "files returned per listing")
	workDir := fs.String("work-dir", "", "download directory for remote prints")
	metricsAddr := fs.String("metrics-addr", "", "metrics listen address, empty to disable")
	logLevel := fs.String("log-level", "", "log level")
	_ = fs.Parse(args)

	cfg := loadConfig(*path)

	// Only flags given on the command line overwrite stored values.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "printer-ip":
			cfg.PrinterIP = *printerIP
		case "printer-port":
			cfg.PrinterPort = *printerPort
		case "mainboard-id":
			cfg.MainboardID = *mainboardID
		case "broker":
			cfg.MQTTBroker = *broker
		case "broker-port":
			cfg.MQTTPort = *brokerPort
		case "api-key":
			cfg.APIKey = *apiKey
		case "interval":
			cfg.ReadInterval = *interval
		case "max-files":
			cfg.MaxFiles = *maxFiles
		case "work-dir":
			cfg.WorkDir = *workDir
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := config.Save(*path, cfg); err != nil {
		fail("cannot save configuration: %v", err)
	}

	fmt.Printf("configuration saved: %s\n", *path)
	if err := cfg.Validate(); err != nil {
		fmt.Printf("warning: %v\n", err)
	}
}

func runProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	path := configFlag(fs)
	_ = fs.Parse(args)

	cfg := loadConfig(*path)

	if err := device.Probe(context.Background(), cfg.PrinterAddr()); err != nil {
		fail("printer %s unreachable: %v", cfg.PrinterAddr(), err)
	}

	fmt.Printf("printer %s reachable\n", cfg.PrinterAddr())
}

func runDiscover(args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	path := configFlag(fs)
	save := fs.Bool("save", false, "store the discovered id in the configuration")
	_ = fs.Parse(args)

	cfg := loadConfig(*path)

	id, err := device.DiscoverMainboardID(context.Background(), cfg.PrinterAddr())
	if err != nil {
		fail("discovery failed: %v", err)
	}

	fmt.Printf("mainboard id: %s\n", id)

	if *save {
		cfg.MainboardID = id
		if err := config.Save(*path, cfg); err != nil {
			fail("cannot save configuration: %v", err)
		}
		fmt.Printf("configuration saved: %s\n", *path)
	}
}

func runAutostart(args []string) {
	if len(args) == 0 {
		fail("usage: printer-bridge autostart enable|disable|status [-config path]")
	}

	action := args[0]
	fs := flag.NewFlagSet("autostart", flag.ExitOnError)
	path := configFlag(fs)
	_ = fs.Parse(args[1:])

	switch action {
	case "enable":
		exe, err := os.Executable()
		if err != nil {
			fail("cannot resolve executable: %v", err)
		}
		configPath, err := filepath.Abs(*path)
		if err != nil {
			fail("cannot resolve config path: %v", err)
		}
		if err := autostart.Enable(exe, configPath); err != nil {
			fail("autostart enable failed: %v", err)
		}
		fmt.Println("autostart enabled")
	case "disable":
		if err := autostart.Disable(); err != nil {
			fail("autostart disable failed: %v", err)
		}
		fmt.Println("autostart disabled")
	case "status":
		command, err := autostart.Status()
		if err != nil {
			fail("autostart status failed: %v", err)
		}
		if command == "" {
			fmt.Println("autostart disabled")
			return
		}
		fmt.Printf("autostart enabled: %s\n", command)
	default:
		fail("unknown autostart action %q", action)
	}
}

// buildLogger writes to the console and appends JSON lines to the bridge log
// file. LOG_LEVEL in the environment wins over the configured level.
func buildLogger(cfg *config.Config) (zerolog.Logger, func(), error) {
	lc := logger.DefaultConfig()
	if os.Getenv("LOG_LEVEL") == "" && cfg.LogLevel != "" {
		lc.Level = cfg.LogLevel
	}
	lc.TimeFormat = time.RFC3339
	lc.File = filepath.Join(config.LogDir(), "bridge.log")

	return logger.New(lc)
}
