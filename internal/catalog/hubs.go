package catalog

type hubRow struct {
	name string
	base float64
	vol  float64
	unit string
}

var sectorHubs = []struct {
	sector Sector
	unit   string
	rows   []hubRow
}{
	{SectorGas, "$/MMBtu", []hubRow{
		{"Henry Hub", 2.75, 4.5, ""},
		{"Waha", 2.40, 6.0, ""},
		{"SoCal Gas", 2.90, 5.5, ""},
		{"Chicago", 2.70, 4.0, ""},
		{"Algonquin", 3.55, 12.0, ""},
		{"Transco Zone 6", 3.35, 10.0, ""},
		{"Dominion South", 2.30, 5.0, ""},
		{"Dawn", 2.85, 4.5, ""},
		{"Sumas", 2.95, 6.0, ""},
		{"Malin", 2.93, 5.5, ""},
		{"Opal", 2.67, 5.0, ""},
		{"Tetco M3", 3.30, 9.0, ""},
		{"Kern River", 2.80, 5.0, ""},
		{"AECO", 1.95, 7.0, "CAD/GJ"},
	}},
	{SectorCrude, "$/bbl", []hubRow{
		{"WTI Cushing", 79.50, 1.8, ""},
		{"Brent Dated", 82.70, 1.6, ""},
		{"WTI Midland", 79.90, 2.0, ""},
		{"Mars Sour", 77.70, 2.2, ""},
		{"LLS", 80.70, 1.9, ""},
		{"ANS", 80.40, 2.0, ""},
		{"Bakken", 78.90, 2.1, ""},
		{"WCS", 65.00, 3.0, ""},
	}},
	{SectorPower, "$/MWh", []hubRow{
		{"ERCOT Hub", 42.50, 8.0, ""},
		{"ERCOT North", 40.80, 7.5, ""},
		{"ERCOT South", 44.10, 9.0, ""},
		{"PJM West Hub", 38.20, 6.0, ""},
		{"NEPOOL Mass", 51.30, 10.0, ""},
		{"MISO Illinois", 34.70, 5.5, ""},
		{"CAISO NP15", 48.60, 9.5, ""},
		{"CAISO SP15", 47.20, 9.0, ""},
		{"NYISO Zone J", 55.40, 11.0, ""},
		{"NYISO Zone A", 36.80, 7.0, ""},
		{"SPP North", 33.90, 6.5, ""},
	}},
	{SectorFreight, "pts", []hubRow{
		{"Baltic Dry Index", 1650, 5.0, ""},
		{"Baltic Capesize", 2200, 7.0, ""},
		{"Baltic Panamax", 1450, 5.5, ""},
		{"Baltic Supramax", 1280, 5.0, ""},
		{"TD3C VLCC AG-East", 45.50, 8.0, "WS"},
		{"TC2 Transatlantic", 18.20, 9.0, "WS"},
		{"TD20 Suezmax WAF", 32.80, 7.5, "WS"},
		{"LNG Spot East", 12.40, 6.0, "$k/day"},
	}},
	{SectorAg, "", []hubRow{
		{"Corn (CBOT)", 4.52, 3.5, "$/bu"},
		{"Soybeans (CBOT)", 11.85, 2.8, "$/bu"},
		{"Wheat (CBOT)", 5.78, 4.0, "$/bu"},
		{"Soybean Oil (CBOT)", 0.445, 3.2, "$/lb"},
		{"Soybean Meal (CBOT)", 330.50, 2.5, "$/st"},
		{"Cotton (ICE)", 0.775, 3.5, "$/lb"},
		{"Sugar #11 (ICE)", 0.198, 4.5, "$/lb"},
		{"Coffee C (ICE)", 1.88, 5.0, "$/lb"},
		{"Cocoa (ICE)", 8450, 3.0, "$/t"},
		{"Live Cattle (CME)", 1.875, 2.0, "$/lb"},
		{"Lean Hogs (CME)", 0.895, 4.0, "$/lb"},
		{"Feeder Cattle (CME)", 2.56, 2.2, "$/lb"},
	}},
	{SectorMetals, "", []hubRow{
		{"Gold (COMEX)", 2340.50, 1.2, "$/oz"},
		{"Silver (COMEX)", 29.45, 3.0, "$/oz"},
		{"Copper (COMEX)", 4.42, 2.5, "$/lb"},
		{"Platinum (NYMEX)", 985, 2.0, "$/oz"},
		{"Palladium (NYMEX)", 1020, 3.5, "$/oz"},
		{"Aluminum (LME)", 2480, 2.0, "$/t"},
		{"Nickel (LME)", 17250, 3.0, "$/t"},
		{"Zinc (LME)", 2720, 2.5, "$/t"},
		{"Iron Ore (SGX)", 108.50, 3.5, "$/t"},
		{"Steel HRC (CME)", 780, 2.8, "$/st"},
	}},
	{SectorNGL, "c/gal", []hubRow{
		{"Ethane (C2)", 22.5, 6.0, ""},
		{"Propane (C3)", 72.0, 5.0, ""},
		{"Normal Butane (nC4)", 105.0, 4.5, ""},
		{"Isobutane (iC4)", 112.0, 4.5, ""},
		{"Nat Gasoline (C5+)", 155.0, 3.5, ""},
	}},
	{SectorLNG, "$/MMBtu", []hubRow{
		{"JKM (Platts)", 12.80, 8.0, ""},
		{"TTF (ICE)", 10.50, 7.0, ""},
		{"NBP (ICE)", 10.20, 7.5, ""},
		{"HH Netback", 8.90, 5.0, ""},
		{"DES South America", 11.40, 6.5, ""},
		{"Brent-Linked LNG", 13.20, 4.0, ""},
	}},
}

func defaultInstruments() []Instrument {
	var out []Instrument
	for _, sh := range sectorHubs {
		policy := FloorFraction
		if sh.sector == SectorPower {
			policy = FloorNegative
		}
		for _, row := range sh.rows {
			unit := row.unit
			if unit == "" {
				unit = sh.unit
			}
			out = append(out, Instrument{
				Name:          row.name,
				Sector:        sh.sector,
				BasePrice:     row.base,
				VolatilityPct: row.vol,
				Unit:          unit,
				FloorPolicy:   policy,
			})
		}
	}
	return out
}
