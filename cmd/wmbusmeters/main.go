// Command wmbusmeters decodes wireless and wired M-Bus telegrams
// arriving on one or more configured dongles and prints each meter's
// decoded readings. Thin wiring only: flag/config parsing follows the
// teacher's cmd/direwolf/main.go (pflag, a Usage func, explicit exit
// codes), and everything else delegates to the internal packages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/address"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/config"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/dongle"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/driverfile"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/meter"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/serialmgr"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/telegram"
)

func main() {
	flags := config.BindFlags(pflag.CommandLine)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "wmbusmeters - decode wireless M-Bus telegrams from configured dongles.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: wmbusmeters [options]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	cfg, err := loadConfiguration(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wmbusmeters: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Error("could not build driver registry", "err", err)
		os.Exit(1)
	}

	meters, err := buildMeters(cfg, registry)
	if err != nil {
		logger.Error("could not configure meters", "err", err)
		os.Exit(1)
	}

	mgr := serialmgr.NewManager(len(cfg.Devices) > 0)
	parser := telegram.NewParser(keyLookupFor(meters))

	for _, ds := range cfg.Devices {
		if err := attachDevice(mgr, ds, parser, meters, registry, logger, cfg.LogTelegrams); err != nil {
			logger.Error("could not open device", "alias", ds.Alias, "err", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go mgr.Run(serialmgr.Ticker(time.Second))

	select {
	case <-ctx.Done():
		logger.Info("stopping on signal")
	case <-mgr.ShutdownRequested():
		logger.Info("stopping: no working devices remain")
	}
	mgr.Stop()
}

func loadConfiguration(flags *config.Flags) (*config.Configuration, error) {
	var cfg *config.Configuration
	if flags.ConfigFile != "" {
		f, err := os.Open(flags.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()
		cfg, err = config.ParseFile(f, flags.ConfigFile)
		if err != nil {
			return nil, err
		}
	}
	return config.Merge(cfg, flags)
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	switch strings.ToLower(level) {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}

// buildRegistry loads driver files from cfg.DriverFilesPath, if any
// (§4.I's "drop a file in, it's picked up" dynamic loading); a run
// with no driver files configured starts with an empty registry,
// since this build carries no compiled-in default drivers.
func buildRegistry(cfg *config.Configuration, logger *log.Logger) (*meter.Registry, error) {
	if cfg.DriverFilesPath == "" {
		return meter.NewRegistry(), nil
	}
	reg, err := driverfile.LoadDir(cfg.DriverFilesPath)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded driver files", "path", cfg.DriverFilesPath)
	return reg, nil
}

// configuredMeter bundles a parsed MeterInfo with the address
// expressions its id spec compiles to, so inbound telegrams can be
// routed to it.
type configuredMeter struct {
	info  *meter.MeterInfo
	exprs []address.Expression
}

func buildMeters(cfg *config.Configuration, registry *meter.Registry) ([]*configuredMeter, error) {
	var out []*configuredMeter
	for _, ms := range cfg.Meters {
		driver, ok := registry.Lookup(ms.Driver)
		if !ok {
			return nil, fmt.Errorf("meter %s: unknown driver %q", ms.Name, ms.Driver)
		}
		var key []byte
		if ms.Key != "" {
			k, err := parseHexKey(ms.Key)
			if err != nil {
				return nil, fmt.Errorf("meter %s: %w", ms.Name, err)
			}
			key = k
		}
		if driver.RequiresKey && len(key) == 0 {
			return nil, fmt.Errorf("meter %s: driver %s requires a key", ms.Name, ms.Driver)
		}
		exprs, err := address.ParseExpressions(ms.ID)
		if err != nil {
			return nil, fmt.Errorf("meter %s: %w", ms.Name, err)
		}
		out = append(out, &configuredMeter{
			info:  &meter.MeterInfo{Name: ms.Name, Driver: driver, ID: ms.ID, Key: key},
			exprs: exprs,
		})
	}
	return out, nil
}

func parseHexKey(s string) ([]byte, error) {
	b := make([]byte, len(s)/2)
	if _, err := fmt.Sscanf(s, "%x", &b); err != nil || len(s)%2 != 0 {
		return nil, fmt.Errorf("bad hex key %q", s)
	}
	return b, nil
}

func keyLookupFor(meters []*configuredMeter) telegram.KeyLookup {
	return func(id string) ([]byte, bool) {
		for _, m := range meters {
			if m.info.ID == id && len(m.info.Key) > 0 {
				return m.info.Key, true
			}
		}
		return nil, false
	}
}

func attachDevice(
	mgr *serialmgr.Manager,
	ds config.DeviceSpec,
	parser *telegram.Parser,
	meters []*configuredMeter,
	registry *meter.Registry,
	logger *log.Logger,
	logTelegrams bool,
) error {
	kind := dongle.KindIM871A
	if strings.EqualFold(ds.Type, "amb8465") {
		kind = dongle.KindAMB8465
	}
	dev, err := dongle.Open(ds.File, kind, ds.BPS)
	if err != nil {
		return err
	}

	dev.OnTelegram(func(frame []byte, rssiDBm float64) {
		handleFrame(frame, parser, meters, registry, logger, logTelegrams, rssiDBm)
	})

	mgr.AddDevice(serialmgr.NewTTYDevice(ds.Alias, dev.RawPort()), dev.HandleBytes)

	if len(ds.LinkModes) > 0 {
		want, err := dongle.ParseLinkModeSet(strings.Join(ds.LinkModes, ","))
		if err != nil {
			return fmt.Errorf("device %s: %w", ds.Alias, err)
		}
		if err := dev.SetLinkModes(context.Background(), want); err != nil {
			return fmt.Errorf("device %s: %w", ds.Alias, err)
		}
	}
	return nil
}

func handleFrame(
	frame []byte,
	parser *telegram.Parser,
	meters []*configuredMeter,
	registry *meter.Registry,
	logger *log.Logger,
	logTelegrams bool,
	rssiDBm float64,
) {
	if logTelegrams {
		logger.Debug("received telegram", "hex", fmt.Sprintf("%X", frame), "rssi_dbm", rssiDBm)
	}

	tg, err := parser.Parse(frame)
	if err != nil {
		logger.Warn("could not decode telegram", "err", err)
		return
	}

	addr := tg.EffectiveAddress()
	for _, cm := range meters {
		matched, _ := address.DoesIdMatchExpressions(addr, cm.exprs)
		if !matched {
			continue
		}
		m := meter.NewMeter(cm.info)
		readings, warnings, err := m.Process(tg)
		if err != nil {
			logger.Warn("meter processing failed", "meter", cm.info.Name, "err", err)
			continue
		}
		for _, w := range warnings {
			logger.Warn(w)
		}
		for _, r := range readings {
			if r.IsText {
				logger.Info("reading", "meter", cm.info.Name, "field", r.FieldName, "value", r.Text)
			} else {
				logger.Info("reading", "meter", cm.info.Name, "field", r.FieldName, "value", r.Number)
			}
		}
	}
}
