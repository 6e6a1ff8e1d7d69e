package value

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Dimension is a physical unit dimension. Conversion is only defined within
// one dimension.
type Dimension int

const (
	DimNone Dimension = iota
	DimMass
	DimLength
	DimVolume
	DimDuration
	DimTemperature
	DimPower
	DimForce
	DimPressure
	DimEnergy
	DimFrequency
	DimData
)

func (d Dimension) String() string {
	switch d {
	case DimMass:
		return "mass"
	case DimLength:
		return "length"
	case DimVolume:
		return "volume"
	case DimDuration:
		return "duration"
	case DimTemperature:
		return "temperature"
	case DimPower:
		return "power"
	case DimForce:
		return "force"
	case DimPressure:
		return "pressure"
	case DimEnergy:
		return "energy"
	case DimFrequency:
		return "frequency"
	case DimData:
		return "data_size"
	}
	return "none"
}

// unitDef describes one unit within a dimension: base = unit * factor + offset.
// Offset is only non-zero for temperatures.
type unitDef struct {
	dim    Dimension
	factor decimal.Decimal
	offset decimal.Decimal
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("bad unit constant %q: %v", s, err))
	}
	return d
}

// unitTable maps the canonical (singular) unit name to its definition.
// Base units per dimension: gram, meter, liter, second, celsius, watt,
// newton, pascal, joule, hertz, byte.
var unitTable = map[string]unitDef{
	// mass
	"kilogram":  {DimMass, dec("1000"), decimal.Zero},
	"gram":      {DimMass, dec("1"), decimal.Zero},
	"milligram": {DimMass, dec("0.001"), decimal.Zero},
	"ton":       {DimMass, dec("1000000"), decimal.Zero},
	"pound":     {DimMass, dec("453.59237"), decimal.Zero},
	"ounce":     {DimMass, dec("28.34952"), decimal.Zero},

	// length
	"kilometer":     {DimLength, dec("1000"), decimal.Zero},
	"meter":         {DimLength, dec("1"), decimal.Zero},
	"decimeter":     {DimLength, dec("0.1"), decimal.Zero},
	"centimeter":    {DimLength, dec("0.01"), decimal.Zero},
	"millimeter":    {DimLength, dec("0.001"), decimal.Zero},
	"mile":          {DimLength, dec("1609.344"), decimal.Zero},
	"nautical_mile": {DimLength, dec("1852"), decimal.Zero},
	"yard":          {DimLength, dec("0.9144"), decimal.Zero},
	"foot":          {DimLength, dec("0.3048"), decimal.Zero},
	"inch":          {DimLength, dec("0.0254"), decimal.Zero},

	// volume
	"cubic_meter":      {DimVolume, dec("1000"), decimal.Zero},
	"cubic_centimeter": {DimVolume, dec("0.001"), decimal.Zero},
	"liter":            {DimVolume, dec("1"), decimal.Zero},
	"deciliter":        {DimVolume, dec("0.1"), decimal.Zero},
	"centiliter":       {DimVolume, dec("0.01"), decimal.Zero},
	"milliliter":       {DimVolume, dec("0.001"), decimal.Zero},
	"gallon":           {DimVolume, dec("3.785411784"), decimal.Zero},
	"quart":            {DimVolume, dec("0.946352946"), decimal.Zero},
	"pint":             {DimVolume, dec("0.473176473"), decimal.Zero},
	"fluid_ounce":      {DimVolume, dec("0.02957352956"), decimal.Zero},

	// duration (seconds). month and year are calendar units: they have no
	// fixed factor and are rejected by Convert; date arithmetic handles them.
	"microsecond": {DimDuration, dec("0.000001"), decimal.Zero},
	"millisecond": {DimDuration, dec("0.001"), decimal.Zero},
	"second":      {DimDuration, dec("1"), decimal.Zero},
	"minute":      {DimDuration, dec("60"), decimal.Zero},
	"hour":        {DimDuration, dec("3600"), decimal.Zero},
	"day":         {DimDuration, dec("86400"), decimal.Zero},
	"week":        {DimDuration, dec("604800"), decimal.Zero},
	"month":       {DimDuration, decimal.Zero, decimal.Zero},
	"year":        {DimDuration, decimal.Zero, decimal.Zero},

	// temperature (affine, base celsius)
	"celsius":    {DimTemperature, dec("1"), decimal.Zero},
	"fahrenheit": {DimTemperature, dec("0.5555555555555556"), dec("-17.77777777777778")},
	"kelvin":     {DimTemperature, dec("1"), dec("-273.15")},

	// power
	"megawatt":   {DimPower, dec("1000000"), decimal.Zero},
	"kilowatt":   {DimPower, dec("1000"), decimal.Zero},
	"watt":       {DimPower, dec("1"), decimal.Zero},
	"milliwatt":  {DimPower, dec("0.001"), decimal.Zero},
	"horsepower": {DimPower, dec("745.7"), decimal.Zero},

	// force
	"newton":     {DimForce, dec("1"), decimal.Zero},
	"kilonewton": {DimForce, dec("1000"), decimal.Zero},
	"lbf":        {DimForce, dec("4.44822"), decimal.Zero},

	// pressure
	"megapascal": {DimPressure, dec("1000000"), decimal.Zero},
	"kilopascal": {DimPressure, dec("1000"), decimal.Zero},
	"pascal":     {DimPressure, dec("1"), decimal.Zero},
	"bar":        {DimPressure, dec("100000"), decimal.Zero},
	"atmosphere": {DimPressure, dec("101325"), decimal.Zero},
	"psi":        {DimPressure, dec("6894.76"), decimal.Zero},
	"torr":       {DimPressure, dec("133.32237"), decimal.Zero},
	"mmhg":       {DimPressure, dec("133.32237"), decimal.Zero},

	// energy
	"megajoule":     {DimEnergy, dec("1000000"), decimal.Zero},
	"kilojoule":     {DimEnergy, dec("1000"), decimal.Zero},
	"joule":         {DimEnergy, dec("1"), decimal.Zero},
	"kilowatt_hour": {DimEnergy, dec("3600000"), decimal.Zero},
	"watt_hour":     {DimEnergy, dec("3600"), decimal.Zero},
	"kilocalorie":   {DimEnergy, dec("4184"), decimal.Zero},
	"calorie":       {DimEnergy, dec("4.184"), decimal.Zero},
	"btu":           {DimEnergy, dec("1055.06"), decimal.Zero},

	// frequency
	"hertz":     {DimFrequency, dec("1"), decimal.Zero},
	"kilohertz": {DimFrequency, dec("1000"), decimal.Zero},
	"megahertz": {DimFrequency, dec("1000000"), decimal.Zero},
	"gigahertz": {DimFrequency, dec("1000000000"), decimal.Zero},

	// data size (decimal and binary prefixes, base byte)
	"byte":     {DimData, dec("1"), decimal.Zero},
	"kilobyte": {DimData, dec("1000"), decimal.Zero},
	"megabyte": {DimData, dec("1000000"), decimal.Zero},
	"gigabyte": {DimData, dec("1000000000"), decimal.Zero},
	"terabyte": {DimData, dec("1000000000000"), decimal.Zero},
	"petabyte": {DimData, dec("1000000000000000"), decimal.Zero},
	"kibibyte": {DimData, dec("1024"), decimal.Zero},
	"mebibyte": {DimData, dec("1048576"), decimal.Zero},
	"gibibyte": {DimData, dec("1073741824"), decimal.Zero},
	"tebibyte": {DimData, dec("1099511627776"), decimal.Zero},
}

// unitAliases maps accepted spellings (plural, British, compact) to the
// canonical name. Singular canonical names resolve via unitTable directly.
var unitAliases = map[string]string{
	"tonne": "ton", "tonnes": "ton",
	"kilometre": "kilometer", "kilometres": "kilometer",
	"metre": "meter", "metres": "meter",
	"decimetre": "decimeter", "decimetres": "decimeter",
	"centimetre": "centimeter", "centimetres": "centimeter",
	"millimetre": "millimeter", "millimetres": "millimeter",
	"feet":          "foot",
	"nauticalmile":  "nautical_mile",
	"nauticalmiles": "nautical_mile",
	"litre":         "liter", "litres": "liter",
	"decilitre": "deciliter", "decilitres": "deciliter",
	"centilitre": "centiliter", "centilitres": "centiliter",
	"millilitre": "milliliter", "millilitres": "milliliter",
	"cubicmeter": "cubic_meter", "cubicmeters": "cubic_meter",
	"cubicmetre": "cubic_meter", "cubicmetres": "cubic_meter",
	"cubic_metre": "cubic_meter", "cubic_metres": "cubic_meter",
	"cubiccentimeter": "cubic_centimeter", "cubiccentimeters": "cubic_centimeter",
	"cubic_centimetre": "cubic_centimeter", "cubic_centimetres": "cubic_centimeter",
	"fluidounce": "fluid_ounce", "fluidounces": "fluid_ounce",
	"poundforce":    "lbf",
	"kilowatthour":  "kilowatt_hour",
	"kilowatthours": "kilowatt_hour",
	"watthour":      "watt_hour",
	"watthours":     "watt_hour",
}

// Currencies supported as money tags. Conversion between currencies is never
// performed.
var currencies = map[string]bool{
	"EUR": true, "USD": true, "GBP": true, "JPY": true, "CNY": true,
	"CHF": true, "CAD": true, "AUD": true, "INR": true,
}

// IsCurrency reports whether code names a known currency (case-insensitive).
func IsCurrency(code string) bool {
	return currencies[strings.ToUpper(code)]
}

// LookupUnit resolves a unit spelling (singular, plural, alias) to its
// canonical name and dimension.
func LookupUnit(name string) (canonical string, dim Dimension, ok bool) {
	s := strings.ToLower(name)
	if def, found := unitTable[s]; found {
		return s, def.dim, true
	}
	if alias, found := unitAliases[s]; found {
		return alias, unitTable[alias].dim, true
	}
	// plural of a canonical name
	if strings.HasSuffix(s, "s") {
		base := strings.TrimSuffix(s, "s")
		if def, found := unitTable[base]; found {
			return base, def.dim, true
		}
		// "inches" -> "inch", "branches" style -es plurals
		if strings.HasSuffix(s, "es") {
			base = strings.TrimSuffix(s, "es")
			if def, found := unitTable[base]; found {
				return base, def.dim, true
			}
		}
	}
	return "", DimNone, false
}

// IsUnitOrCurrency reports whether the word is a unit keyword or currency
// code usable as a literal suffix.
func IsUnitOrCurrency(word string) bool {
	if _, _, ok := LookupUnit(word); ok {
		return true
	}
	return IsCurrency(word)
}

// Pluralize returns the display plural for a canonical unit name.
func Pluralize(unit string) string {
	switch unit {
	case "foot":
		return "feet"
	case "inch":
		return "inches"
	case "celsius", "fahrenheit", "kelvin", "horsepower", "lbf", "psi",
		"mmhg", "torr":
		return unit
	}
	return unit + "s"
}

// calendarUnit reports whether a duration unit has no fixed length in
// seconds.
func calendarUnit(unit string) bool {
	return unit == "month" || unit == "year"
}

// Convert converts a quantity to another unit in the same dimension. The
// result keeps the target unit. Temperature conversions apply the affine
// offset; everything else is purely multiplicative.
func Convert(v Value, targetUnit string) (Value, error) {
	canonical, dim, ok := LookupUnit(targetUnit)
	if !ok {
		return Value{}, fmt.Errorf("unknown unit: %s", targetUnit)
	}
	switch v.Kind {
	case KindQuantity:
		if v.Dim != dim {
			return Value{}, fmt.Errorf("cannot convert %s to %s: dimensions differ (%s vs %s)",
				v.Unit, canonical, v.Dim, dim)
		}
		if v.Unit == canonical {
			return v, nil
		}
		if dim == DimDuration && (calendarUnit(v.Unit) || calendarUnit(canonical)) {
			return Value{}, fmt.Errorf("cannot convert calendar units (month/year) to other duration units")
		}
		from := unitTable[v.Unit]
		to := unitTable[canonical]
		// to base, then to target
		base := v.Num.Mul(from.factor).Add(from.offset)
		out := divScale(base.Sub(to.offset), to.factor)
		return Quantity(out, dim, canonical), nil
	case KindNumber:
		// tagging a bare number with a unit
		return Quantity(v.Num, dim, canonical), nil
	}
	return Value{}, fmt.Errorf("cannot convert %s value to %s", v.Kind, canonical)
}

// ConvertMoney retags a number as money or validates a same-currency
// conversion. Cross-currency conversion is an error.
func ConvertMoney(v Value, currency string) (Value, error) {
	code := strings.ToUpper(currency)
	if !currencies[code] {
		return Value{}, fmt.Errorf("unknown currency: %s", currency)
	}
	switch v.Kind {
	case KindMoney:
		if v.Currency != code {
			return Value{}, fmt.Errorf("cannot convert between currencies: %s to %s", v.Currency, code)
		}
		return v, nil
	case KindNumber:
		return Money(v.Num, code), nil
	}
	return Value{}, fmt.Errorf("cannot convert %s value to %s", v.Kind, code)
}
