package meter

import (
	"time"

	"github.com/go-json-experiment/json"
)

// Wire shapes. Every member is a pointer so that an absent member and an
// explicit null can both be reported as missing. Member names are matched
// case-sensitively; unknown members are ignored.
type (
	payloadWire struct {
		ElectricityMeter *meterWire `json:"electricitymeter"`
	}

	meterWire struct {
		Timestamp *string     `json:"timestamp"`
		Energy    *energyWire `json:"energy"`
		Power     *powerWire  `json:"power"`
	}

	energyWire struct {
		Export *exportWire `json:"export"`
		Import *importWire `json:"import"`
	}

	exportWire struct {
		Cumulative *float64 `json:"cumulative"`
		Units      *string  `json:"units"`
	}

	importWire struct {
		Cumulative *float64   `json:"cumulative"`
		Day        *float64   `json:"day"`
		Week       *float64   `json:"week"`
		Month      *float64   `json:"month"`
		Units      *string    `json:"units"`
		MPAN       *string    `json:"mpan"`
		Supplier   *string    `json:"supplier"`
		Price      *priceWire `json:"price"`
	}

	priceWire struct {
		UnitRate       *float64 `json:"unitrate"`
		StandingCharge *float64 `json:"standingcharge"`
	}

	powerWire struct {
		Value *float64 `json:"value"`
		Units *string  `json:"units"`
	}
)

// Decode parses a raw payload into a Reading.
//
// It fails with *DecodeError when the payload is not valid JSON, when a
// required member is missing or null, or when the timestamp is not exactly
// YYYY-MM-DDTHH:MM:SSZ. Decode has no side effects.
func Decode(payload []byte) (Reading, error) {
	var wire payloadWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Reading{}, &DecodeError{Reason: "malformed JSON", Err: err}
	}

	m := wire.ElectricityMeter
	if m == nil {
		return Reading{}, missing("electricitymeter")
	}
	if m.Timestamp == nil {
		return Reading{}, missing("electricitymeter.timestamp")
	}
	ts, err := ParseTimestamp(*m.Timestamp)
	if err != nil {
		return Reading{}, &DecodeError{Field: "electricitymeter.timestamp", Reason: "invalid format", Err: err}
	}

	if m.Energy == nil {
		return Reading{}, missing("electricitymeter.energy")
	}
	export, err := decodeExport(m.Energy.Export)
	if err != nil {
		return Reading{}, err
	}
	imp, err := decodeImport(m.Energy.Import)
	if err != nil {
		return Reading{}, err
	}
	power, err := decodePower(m.Power)
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		Timestamp: ts,
		Export:    export,
		Import:    imp,
		Power:     power,
	}, nil
}

// ParseTimestamp parses a wire timestamp of the exact form
// YYYY-MM-DDTHH:MM:SSZ. Fractional seconds and numeric offsets are rejected.
func ParseTimestamp(s string) (time.Time, error) {
	// time.Parse tolerates fractional seconds the layout does not name.
	if len(s) != len(WireTimestampLayout) {
		return time.Time{}, &time.ParseError{
			Layout:  WireTimestampLayout,
			Value:   s,
			Message: ": unexpected length",
		}
	}
	return time.Parse(WireTimestampLayout, s)
}

func decodeExport(w *exportWire) (ExportEnergy, error) {
	const prefix = "electricitymeter.energy.export"
	if w == nil {
		return ExportEnergy{}, missing(prefix)
	}

	var f fields
	e := ExportEnergy{
		Cumulative: f.number(prefix+".cumulative", w.Cumulative),
		Units:      f.text(prefix+".units", w.Units),
	}
	return e, f.err
}

func decodeImport(w *importWire) (ImportEnergy, error) {
	const prefix = "electricitymeter.energy.import"
	if w == nil {
		return ImportEnergy{}, missing(prefix)
	}

	var f fields
	imp := ImportEnergy{
		Cumulative: f.number(prefix+".cumulative", w.Cumulative),
		Day:        f.number(prefix+".day", w.Day),
		Week:       f.number(prefix+".week", w.Week),
		Month:      f.number(prefix+".month", w.Month),
		Units:      f.text(prefix+".units", w.Units),
		MPAN:       f.text(prefix+".mpan", w.MPAN),
		Supplier:   f.text(prefix+".supplier", w.Supplier),
	}
	if f.err != nil {
		return ImportEnergy{}, f.err
	}

	if w.Price == nil {
		return ImportEnergy{}, missing(prefix + ".price")
	}
	imp.Price = Price{
		UnitRate:       f.number(prefix+".price.unitrate", w.Price.UnitRate),
		StandingCharge: f.number(prefix+".price.standingcharge", w.Price.StandingCharge),
	}
	return imp, f.err
}

func decodePower(w *powerWire) (Power, error) {
	const prefix = "electricitymeter.power"
	if w == nil {
		return Power{}, missing(prefix)
	}

	var f fields
	p := Power{
		Value: f.number(prefix+".value", w.Value),
		Units: f.text(prefix+".units", w.Units),
	}
	return p, f.err
}

// fields dereferences required members, remembering the first missing one.
type fields struct {
	err error
}

func (f *fields) number(name string, v *float64) float64 {
	if v == nil {
		f.fail(name)
		return 0
	}
	return *v
}

func (f *fields) text(name string, v *string) string {
	if v == nil {
		f.fail(name)
		return ""
	}
	return *v
}

func (f *fields) fail(name string) {
	if f.err == nil {
		f.err = missing(name)
	}
}

func missing(field string) *DecodeError {
	return &DecodeError{Field: field, Reason: "missing"}
}
