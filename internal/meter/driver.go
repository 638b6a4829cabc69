// Package meter implements the driver registry and per-meter decode
// pipeline (§4.H): DriverInfo describes a model's fields and status
// lookups, MeterInfo binds a driver to a configured meter instance,
// and Meter runs processFieldExtractors -> processContent ->
// processFieldCalculators against a decoded telegram, generalising
// the teacher's callback-registry pattern (callbacks.go) and its
// yaml-driven lookup-table loading (deviceid.go) to a driver-per-model
// registry keyed by name.
package meter

import (
	"fmt"
	"sync"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/dvparser"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/fieldmatch"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/formula"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/telegram"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/units"
)

// FieldExtractor pulls one named field's raw numeric value straight
// off a matched DVEntry.
type FieldExtractor struct {
	FieldName     string
	Matcher       fieldmatch.Matcher
	Signed        bool
	DisplayUnit   units.Unit
	StatusLookups []fieldmatch.Lookup // applied in order when this field renders status tokens instead of a number
	// ForceIntoStatus flags an extractor declared with INCLUDE_TPL_STATUS
	// or INJECT_INTO_STATUS. Processing does not read it: a flagged
	// extractor still renders its own independent field and adds nothing
	// to the "status" field.
	ForceIntoStatus bool
}

// FieldCalculator derives one named field from a formula over already
// extracted fields, run after all FieldExtractors for the telegram.
type FieldCalculator struct {
	FieldName string
	Formula   string
	compiled  formula.Node
}

// DriverInfo is the immutable, shared-across-instances description of
// one meter model: its matching rule (mfct/type/version) and its
// field program.
type DriverInfo struct {
	Name             string
	MatchMfct        []uint16
	MatchType        []byte
	MatchVersion     []byte
	Extractors       []FieldExtractor
	Calculators      []FieldCalculator
	ForceMfctIndex   bool // per-driver flag (§9 decision 4); nothing reads it, so fields are never indexed by mfct+type+version
	RequiresKey      bool
}

// Matches reports whether a decoded telegram's DLL address fields
// identify this driver's model.
func (d *DriverInfo) Matches(addr telegram.DLLHeader) bool {
	if len(d.MatchMfct) > 0 && !containsU16(d.MatchMfct, addr.Address.Mfct) {
		return false
	}
	if len(d.MatchType) > 0 && !containsByte(d.MatchType, addr.Address.Type) {
		return false
	}
	if len(d.MatchVersion) > 0 && !containsByte(d.MatchVersion, addr.Address.Version) {
		return false
	}
	return true
}

func containsU16(s []uint16, v uint16) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsByte(s []byte, v byte) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Registry holds every registered DriverInfo, keyed by name.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]*DriverInfo
}

// NewRegistry returns an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{drivers: map[string]*DriverInfo{}}
}

// Register adds d, replacing any existing driver of the same name
// (a reloaded driver file, per §4.I, supersedes the built-in one).
func (r *Registry) Register(d *DriverInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Name] = d
}

// Lookup returns the named driver, or ok=false.
func (r *Registry) Lookup(name string) (*DriverInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	return d, ok
}

// FindByAddress returns every registered driver whose match rule
// accepts addr (§4.H allows more than one driver to claim a telegram
// when the caller hasn't pinned a specific driver name).
func (r *Registry) FindByAddress(addr telegram.DLLHeader) []*DriverInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*DriverInfo
	for _, d := range r.drivers {
		if d.Matches(addr) {
			out = append(out, d)
		}
	}
	return out
}

// MeterInfo binds a DriverInfo to one configured meter instance: its
// display name, target id, and (if needed) decryption key.
type MeterInfo struct {
	Name   string
	Driver *DriverInfo
	ID     string
	Key    []byte
}

// Reading is one field's final, scaled, named value.
type Reading struct {
	FieldName string
	Number    float64
	Unit      units.Unit
	Text      string // set instead of Number for string/status-token fields
	IsText    bool
}

// Meter runs a MeterInfo's driver program against decoded telegrams,
// accumulating warning counters the way §4.H's rate-limited warning
// requirement asks for.
type Meter struct {
	Info           *MeterInfo
	warningCounts  map[string]int
	warningLimit   int
}

// NewMeter returns a Meter ready to process telegrams for info, with
// a default per-category warning cap of 10 before warnings are
// suppressed (§4.H rate limiting).
func NewMeter(info *MeterInfo) *Meter {
	return &Meter{Info: info, warningCounts: map[string]int{}, warningLimit: 10}
}

// warn records one occurrence of category and reports whether it
// should actually be emitted (true for the first warningLimit
// occurrences, false afterwards).
func (m *Meter) warn(category string) bool {
	m.warningCounts[category]++
	return m.warningCounts[category] <= m.warningLimit
}

// Process runs the extractor/content/calculator pipeline against a
// decoded telegram's DVEntries, returning the final Reading set.
func (m *Meter) Process(tg *telegram.Telegram) ([]Reading, []string, error) {
	fieldValues := map[string]Reading{}
	var warnings []string

	if err := m.processFieldExtractors(tg, fieldValues, &warnings); err != nil {
		return nil, warnings, err
	}
	m.processContent(tg, fieldValues)
	if err := m.processFieldCalculators(fieldValues); err != nil {
		return nil, warnings, err
	}

	readings := make([]Reading, 0, len(fieldValues))
	for _, r := range fieldValues {
		readings = append(readings, r)
	}
	return readings, warnings, nil
}

// processFieldExtractors runs every driver FieldExtractor against the
// telegram's DVEntries (§4.H step 1).
func (m *Meter) processFieldExtractors(tg *telegram.Telegram, out map[string]Reading, warnings *[]string) error {
	if tg.Entries == nil {
		return fmt.Errorf("meter: telegram has no decoded entries")
	}
	for _, fe := range m.Info.Driver.Extractors {
		entry, ok := fieldmatch.FindFirst(tg.Entries, fe.Matcher)
		if !ok {
			if m.warn("missing_field:" + fe.FieldName) {
				*warnings = append(*warnings, fmt.Sprintf("meter %s: expected field %q not present in telegram", m.Info.Name, fe.FieldName))
			}
			continue
		}
		if len(fe.StatusLookups) > 0 {
			raw, err := dvparser.ExtractInt(entry, false)
			if err != nil {
				return err
			}
			var tokens []string
			for _, lk := range fe.StatusLookups {
				toks, err := fieldmatch.Translate(lk, uint64(raw))
				if err != nil {
					return err
				}
				tokens = append(tokens, toks...)
			}
			out[fe.FieldName] = Reading{FieldName: fe.FieldName, Text: joinTokens(tokens), IsText: true}
			continue
		}
		value, unit, err := dvparser.NumericValue(entry, fe.Signed, dvparser.ScaleAuto, 0)
		if err != nil {
			return err
		}
		if fe.DisplayUnit != 0 {
			converted, err := units.Convert(value, unit, fe.DisplayUnit)
			if err == nil {
				value, unit = converted, fe.DisplayUnit
			}
		}
		out[fe.FieldName] = Reading{FieldName: fe.FieldName, Number: value, Unit: unit}
	}
	return nil
}

func joinTokens(tokens []string) string {
	if len(tokens) == 0 {
		return "OK"
	}
	out := tokens[0]
	for _, t := range tokens[1:] {
		out += " " + t
	}
	return out
}

// processContent adds a synthetic "status" field holding the TPL
// status byte as "0x%02X" text when a TPL is present, its status byte
// is non-zero, and no extractor already produced "status". It does not
// consult ForceIntoStatus, does not merge status tokens from other
// fields, and adds no "status" field when the TPL status byte is zero.
func (m *Meter) processContent(tg *telegram.Telegram, out map[string]Reading) {
	if !tg.TPL.Present {
		return
	}
	if _, exists := out["status"]; !exists && tg.TPL.Status != 0 {
		out["status"] = Reading{FieldName: "status", Text: fmt.Sprintf("0x%02X", tg.TPL.Status), IsText: true}
	}
}

// processFieldCalculators evaluates every FieldCalculator's formula
// against the already-extracted fields (§4.H step 3).
func (m *Meter) processFieldCalculators(fields map[string]Reading) error {
	for i := range m.Info.Driver.Calculators {
		fc := &m.Info.Driver.Calculators[i]
		if fc.compiled == nil {
			node, err := formula.Parse(fc.Formula)
			if err != nil {
				return fmt.Errorf("meter: driver %s field %s: %w", m.Info.Driver.Name, fc.FieldName, err)
			}
			fc.compiled = node
		}
		lookup := func(name string) (formula.Value, error) {
			r, ok := fields[name]
			if !ok {
				return formula.Value{}, fmt.Errorf("meter: formula references unknown field %q", name)
			}
			return formula.Value{Number: r.Number, Dim: units.Of(units.QuantityOf(r.Unit)), Unit: r.Unit}, nil
		}
		v, err := formula.Eval(fc.compiled, lookup)
		if err != nil {
			return err
		}
		fields[fc.FieldName] = Reading{FieldName: fc.FieldName, Number: v.Number, Unit: v.Unit}
	}
	return nil
}
