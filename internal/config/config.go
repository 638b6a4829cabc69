// Package config loads the textual configuration file and CLI flags
// that drive a wmbusmeters-style run: which serial/USB dongles to
// open, which meters to decode, and where to send readings.
// Generalises the teacher's config.go line-scanning directive reader
// (bufio.Scanner, "Line %d: ..." errors, defaults-then-override) to
// wmbusmeters' device-spec/meter-spec grammar, and its pflag-based CLI
// wiring from cmd/direwolf/main.go.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/wmerrors"
)

// DeviceSpec is one parsed DEVICE directive: alias=file:type(extras):id:bps:linkmodes
// per §4.K/§6.
type DeviceSpec struct {
	Alias     string
	File      string
	Type      string
	Extras    string
	ID        string
	BPS       int
	LinkModes []string
}

// MeterSpec is one parsed METER directive: name=driver:id:key:fields.
type MeterSpec struct {
	Name   string
	Driver string
	ID     string
	Key    string // hex AES key, empty when unencrypted
	Fields []string
}

// Configuration is the fully assembled run configuration, the
// merge of a textual config file and CLI flag overrides (CLI wins).
type Configuration struct {
	Devices         []DeviceSpec
	Meters          []MeterSpec
	LogLevel        string
	LogTelegrams    bool
	ShellExec       string // §6 per-reading shell hook, empty to disable
	DriverFilesPath string
}

// ParseFile reads a wmbusmeters-style config file: blank lines and
// lines starting with # are ignored, everything else is a
// "KEY value..." directive split at the first space character.
func ParseFile(r io.Reader, source string) (*Configuration, error) {
	cfg := &Configuration{LogLevel: "info"}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, rest, _ := strings.Cut(text, " ")
		rest = strings.TrimSpace(rest)

		var err error
		switch strings.ToUpper(key) {
		case "DEVICE":
			err = parseDeviceLine(cfg, rest)
		case "METER":
			err = parseMeterLine(cfg, rest)
		case "LOGLEVEL":
			cfg.LogLevel = rest
		case "LOGTELEGRAMS":
			cfg.LogTelegrams = strings.EqualFold(rest, "true")
		case "SHELL":
			cfg.ShellExec = rest
		case "DRIVERFILES":
			cfg.DriverFilesPath = rest
		default:
			err = fmt.Errorf("unrecognised directive %q", key)
		}
		if err != nil {
			return nil, &wmerrors.ConfigError{Source: source, Line: line, Field: key, Reason: err.Error()}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &wmerrors.ConfigError{Source: source, Reason: err.Error()}
	}
	return cfg, nil
}

// parseDeviceLine parses "alias=file:type(extras):id:bps:linkmode,linkmode".
func parseDeviceLine(cfg *Configuration, line string) error {
	alias, rest, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("device spec %q missing '=alias'", line)
	}
	parts := strings.Split(rest, ":")
	if len(parts) < 1 || parts[0] == "" {
		return fmt.Errorf("device spec %q missing device file", line)
	}
	spec := DeviceSpec{Alias: alias, File: parts[0]}
	if len(parts) > 1 {
		spec.Type = parts[1]
		if open, extras, found := strings.Cut(spec.Type, "("); found {
			spec.Type = open
			spec.Extras = strings.TrimSuffix(extras, ")")
		}
	}
	if len(parts) > 2 {
		spec.ID = parts[2]
	}
	if len(parts) > 3 && parts[3] != "" {
		bps, err := strconv.Atoi(parts[3])
		if err != nil {
			return fmt.Errorf("device spec %q has non-numeric bps %q", line, parts[3])
		}
		spec.BPS = bps
	}
	if len(parts) > 4 && parts[4] != "" {
		spec.LinkModes = strings.Split(parts[4], ",")
	}
	cfg.Devices = append(cfg.Devices, spec)
	return nil
}

// parseMeterLine parses "name=driver:id:key:field,field,...".
func parseMeterLine(cfg *Configuration, line string) error {
	name, rest, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("meter spec %q missing '=name'", line)
	}
	parts := strings.Split(rest, ":")
	if len(parts) < 2 {
		return fmt.Errorf("meter spec %q must be driver:id[:key[:fields]]", line)
	}
	spec := MeterSpec{Name: name, Driver: parts[0], ID: parts[1]}
	if len(parts) > 2 {
		spec.Key = parts[2]
	}
	if len(parts) > 3 && parts[3] != "" {
		spec.Fields = strings.Split(parts[3], ",")
	}
	cfg.Meters = append(cfg.Meters, spec)
	return nil
}

// Flags is the parsed CLI surface (§6), layered on top of a file
// Configuration so flags take precedence.
type Flags struct {
	ConfigFile   string
	LogLevel     string
	LogTelegrams bool
	ShellExec    string
	Device       []string
	Meter        []string
}

// BindFlags registers wmbusmeters' CLI flags on fs using pflag, the
// same flag library the teacher's cmd/direwolf/main.go uses.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVarP(&f.ConfigFile, "config", "c", "", "path to configuration file")
	fs.StringVar(&f.LogLevel, "loglevel", "", "log level: debug, info, warn, error")
	fs.BoolVar(&f.LogTelegrams, "logtelegrams", false, "log raw telegram hex on receipt")
	fs.StringVar(&f.ShellExec, "shell", "", "shell command to run per reading")
	fs.StringArrayVar(&f.Device, "device", nil, "device spec alias=file:type(extras):id:bps:linkmodes, repeatable")
	fs.StringArrayVar(&f.Meter, "meter", nil, "meter spec name=driver:id:key:fields, repeatable")
	return f
}

// Merge layers f's non-zero fields over cfg, returning the effective
// Configuration. CLI flags always win over file directives.
func Merge(cfg *Configuration, f *Flags) (*Configuration, error) {
	if cfg == nil {
		cfg = &Configuration{LogLevel: "info"}
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.LogTelegrams {
		cfg.LogTelegrams = true
	}
	if f.ShellExec != "" {
		cfg.ShellExec = f.ShellExec
	}
	for _, d := range f.Device {
		if err := parseDeviceLine(cfg, d); err != nil {
			return nil, &wmerrors.ConfigError{Source: "cli", Field: "--device", Reason: err.Error()}
		}
	}
	for _, m := range f.Meter {
		if err := parseMeterLine(cfg, m); err != nil {
			return nil, &wmerrors.ConfigError{Source: "cli", Field: "--meter", Reason: err.Error()}
		}
	}
	return cfg, nil
}
