package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// InstrumentType is a tradable product code such as PHYS_FIXED or FREIGHT_FFA.
type InstrumentType string

const (
	TypePhysFixed  InstrumentType = "PHYS_FIXED"
	TypePhysIndex  InstrumentType = "PHYS_INDEX"
	TypeBasisSwap  InstrumentType = "BASIS_SWAP"
	TypeFixedFloat InstrumentType = "FIXED_FLOAT"
	TypeSpread     InstrumentType = "SPREAD"
	TypeBalmo      InstrumentType = "BALMO"
	TypeOptionNG   InstrumentType = "OPTION_NG"
	TypeTAS        InstrumentType = "TAS"
	TypeMultiLeg   InstrumentType = "MULTILEG"

	TypeCrudePhys InstrumentType = "CRUDE_PHYS"
	TypeCrudeSwap InstrumentType = "CRUDE_SWAP"
	TypeCrudeDiff InstrumentType = "CRUDE_DIFF"
	TypeOptionCL  InstrumentType = "OPTION_CL"
	TypeEFP       InstrumentType = "EFP"

	TypeFreightFFA  InstrumentType = "FREIGHT_FFA"
	TypeFreightPhys InstrumentType = "FREIGHT_PHYS"

	TypeAgFutures InstrumentType = "AG_FUTURES"
	TypeAgOption  InstrumentType = "AG_OPTION"
	TypeAgSpread  InstrumentType = "AG_SPREAD"

	TypeMetalsFutures InstrumentType = "METALS_FUTURES"
	TypeMetalsOption  InstrumentType = "METALS_OPTION"
	TypeMetalsSpread  InstrumentType = "METALS_SPREAD"

	TypeNGLPhys   InstrumentType = "NGL_PHYS"
	TypeNGLSwap   InstrumentType = "NGL_SWAP"
	TypeNGLSpread InstrumentType = "NGL_SPREAD"
	TypeNGLFrac   InstrumentType = "NGL_FRAC"

	TypeLNGDES    InstrumentType = "LNG_DES"
	TypeLNGFOB    InstrumentType = "LNG_FOB"
	TypeLNGSwap   InstrumentType = "LNG_SWAP"
	TypeLNGSpread InstrumentType = "LNG_SPREAD"
	TypeLNGBasis  InstrumentType = "LNG_BASIS"
)

// Family is the tagged variant every instrument type belongs to. All
// type-dependent rules are resolved through the family table below.
type Family int

const (
	FamilyEnergy Family = iota + 1
	FamilyBasis
	FamilyGasOption
	FamilyCrude
	FamilyCrudeOption
	FamilyFreight
	FamilyAg
	FamilyMetals
	FamilyNGL
	FamilyLNG
)

var familyNames = map[Family]string{
	FamilyEnergy:      "energy",
	FamilyBasis:       "basis",
	FamilyGasOption:   "gas_option",
	FamilyCrude:       "crude",
	FamilyCrudeOption: "crude_option",
	FamilyFreight:     "freight",
	FamilyAg:          "ag",
	FamilyMetals:      "metals",
	FamilyNGL:         "ngl",
	FamilyLNG:         "lng",
}

func (f Family) String() string {
	if n, ok := familyNames[f]; ok {
		return n
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// ScenarioClass selects which factor of a stress scenario applies to a trade.
type ScenarioClass int

const (
	ScenarioNone ScenarioClass = iota
	ScenarioGas
	ScenarioPower
	ScenarioCrude
	ScenarioFreight
	// ScenarioByHub resolves through the traded hub's sector.
	ScenarioByHub
)

// FamilySpec holds the rules shared by every type of a family.
// Margin = volume / MarginLot * MarginRate * OptionFactor (* spread discount).
type FamilySpec struct {
	Family       Family
	MarginLot    int64
	MarginRate   int64
	OptionFactor decimal.Decimal
	Scenario     ScenarioClass
}

// TypeSpec describes one instrument type.
type TypeSpec struct {
	Type   InstrumentType
	Family Family
	Spread bool
}

// SpreadMarginFactor is applied to calendar-spread style types.
var SpreadMarginFactor = decimal.NewFromFloat(0.4)

var (
	one  = decimal.NewFromInt(1)
	half = decimal.NewFromFloat(0.5)
)

var families = map[Family]FamilySpec{
	FamilyEnergy:      {FamilyEnergy, 10000, 1500, one, ScenarioByHub},
	FamilyBasis:       {FamilyBasis, 10000, 800, one, ScenarioByHub},
	FamilyGasOption:   {FamilyGasOption, 10000, 1500, half, ScenarioByHub},
	FamilyCrude:       {FamilyCrude, 1000, 5000, one, ScenarioCrude},
	FamilyCrudeOption: {FamilyCrudeOption, 1000, 5000, half, ScenarioCrude},
	FamilyFreight:     {FamilyFreight, 1000, 2000, one, ScenarioFreight},
	FamilyAg:          {FamilyAg, 10000, 1500, one, ScenarioGas},
	FamilyMetals:      {FamilyMetals, 10000, 1500, one, ScenarioGas},
	FamilyNGL:         {FamilyNGL, 1000, 1200, one, ScenarioGas},
	FamilyLNG:         {FamilyLNG, 10000, 8000, one, ScenarioGas},
}

var types = map[InstrumentType]TypeSpec{
	TypePhysFixed:  {TypePhysFixed, FamilyEnergy, false},
	TypePhysIndex:  {TypePhysIndex, FamilyEnergy, false},
	TypeFixedFloat: {TypeFixedFloat, FamilyEnergy, false},
	TypeSpread:     {TypeSpread, FamilyEnergy, true},
	TypeBalmo:      {TypeBalmo, FamilyEnergy, false},
	TypeTAS:        {TypeTAS, FamilyEnergy, false},
	TypeMultiLeg:   {TypeMultiLeg, FamilyEnergy, true},
	TypeBasisSwap:  {TypeBasisSwap, FamilyBasis, false},
	TypeOptionNG:   {TypeOptionNG, FamilyGasOption, false},

	TypeCrudePhys: {TypeCrudePhys, FamilyCrude, false},
	TypeCrudeSwap: {TypeCrudeSwap, FamilyCrude, false},
	TypeCrudeDiff: {TypeCrudeDiff, FamilyCrude, true},
	TypeEFP:       {TypeEFP, FamilyCrude, false},
	TypeOptionCL:  {TypeOptionCL, FamilyCrudeOption, false},

	TypeFreightFFA:  {TypeFreightFFA, FamilyFreight, false},
	TypeFreightPhys: {TypeFreightPhys, FamilyFreight, false},

	TypeAgFutures: {TypeAgFutures, FamilyAg, false},
	TypeAgOption:  {TypeAgOption, FamilyAg, false},
	TypeAgSpread:  {TypeAgSpread, FamilyAg, true},

	TypeMetalsFutures: {TypeMetalsFutures, FamilyMetals, false},
	TypeMetalsOption:  {TypeMetalsOption, FamilyMetals, false},
	TypeMetalsSpread:  {TypeMetalsSpread, FamilyMetals, true},

	TypeNGLPhys:   {TypeNGLPhys, FamilyNGL, false},
	TypeNGLSwap:   {TypeNGLSwap, FamilyNGL, false},
	TypeNGLSpread: {TypeNGLSpread, FamilyNGL, true},
	TypeNGLFrac:   {TypeNGLFrac, FamilyNGL, false},

	TypeLNGDES:    {TypeLNGDES, FamilyLNG, false},
	TypeLNGFOB:    {TypeLNGFOB, FamilyLNG, false},
	TypeLNGSwap:   {TypeLNGSwap, FamilyLNG, false},
	TypeLNGSpread: {TypeLNGSpread, FamilyLNG, true},
	TypeLNGBasis:  {TypeLNGBasis, FamilyLNG, false},
}

var sectorTypes = map[Sector][]InstrumentType{
	SectorGas: {TypePhysFixed, TypePhysIndex, TypeBasisSwap, TypeFixedFloat, TypeSpread,
		TypeBalmo, TypeOptionNG, TypeTAS, TypeMultiLeg},
	SectorCrude:   {TypeCrudePhys, TypeCrudeSwap, TypeCrudeDiff, TypeOptionCL, TypeEFP, TypeTAS},
	SectorPower:   {TypePhysFixed, TypePhysIndex, TypeFixedFloat, TypeSpread, TypeBalmo, TypeTAS},
	SectorFreight: {TypeFreightFFA, TypeFreightPhys},
	SectorAg:      {TypeAgFutures, TypeAgOption, TypeAgSpread},
	SectorMetals:  {TypeMetalsFutures, TypeMetalsOption, TypeMetalsSpread},
	SectorNGL:     {TypeNGLPhys, TypeNGLSwap, TypeNGLSpread, TypeNGLFrac},
	SectorLNG:     {TypeLNGDES, TypeLNGFOB, TypeLNGSwap, TypeLNGSpread, TypeLNGBasis},
}

// typeCodeRegex matches upper-case underscore-separated codes: PHYS_FIXED, EFP.
var typeCodeRegex = regexp.MustCompile(`^[A-Z]+(?:_[A-Z0-9]+)*$`)

var (
	ErrInvalidTypeCode = errors.New("catalog: invalid instrument type code")
	ErrUnsupportedType = errors.New("catalog: unsupported instrument type")
	ErrTypeNotInSector = errors.New("catalog: instrument type not traded in sector")
	ErrNegativeVolume  = errors.New("catalog: negative volume")
)

// ParseInstrumentType normalizes and validates an instrument type code.
func ParseInstrumentType(code string) (InstrumentType, error) {
	norm := strings.ToUpper(strings.TrimSpace(code))
	if !typeCodeRegex.MatchString(norm) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTypeCode, code)
	}
	t := InstrumentType(norm)
	if _, ok := types[t]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, norm)
	}
	return t, nil
}

// Spec returns the type's description.
func Spec(t InstrumentType) (TypeSpec, error) {
	ts, ok := types[t]
	if !ok {
		return TypeSpec{}, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	return ts, nil
}

// FamilyOf returns the family rules for t.
func FamilyOf(t InstrumentType) (FamilySpec, error) {
	ts, err := Spec(t)
	if err != nil {
		return FamilySpec{}, err
	}
	return families[ts.Family], nil
}

// TypesFor lists the instrument types tradable in a sector.
func TypesFor(s Sector) []InstrumentType {
	src := sectorTypes[s]
	out := make([]InstrumentType, len(src))
	copy(out, src)
	return out
}

// CheckTradable returns an error unless t may be traded in sector s.
func CheckTradable(s Sector, t InstrumentType) error {
	for _, allowed := range sectorTypes[s] {
		if allowed == t {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in %s", ErrTypeNotInSector, t, s)
}

// Margin returns the initial margin for volume units of type t.
func Margin(t InstrumentType, volume decimal.Decimal) (decimal.Decimal, error) {
	ts, err := Spec(t)
	if err != nil {
		return decimal.Zero, err
	}
	if volume.IsNegative() {
		return decimal.Zero, ErrNegativeVolume
	}
	fs := families[ts.Family]
	m := volume.Div(decimal.NewFromInt(fs.MarginLot)).
		Mul(decimal.NewFromInt(fs.MarginRate)).
		Mul(fs.OptionFactor)
	if ts.Spread {
		m = m.Mul(SpreadMarginFactor)
	}
	return m.Round(2), nil
}

// ScenarioClassOf resolves the stress factor for a trade of type t on a hub
// of the given sector. Unknown types are not stressed.
func ScenarioClassOf(t InstrumentType, hubSector Sector) ScenarioClass {
	fs, err := FamilyOf(t)
	if err != nil {
		return ScenarioNone
	}
	if fs.Scenario != ScenarioByHub {
		return fs.Scenario
	}
	switch hubSector {
	case SectorPower:
		return ScenarioPower
	case SectorCrude:
		return ScenarioCrude
	case SectorFreight:
		return ScenarioFreight
	default:
		return ScenarioGas
	}
}
