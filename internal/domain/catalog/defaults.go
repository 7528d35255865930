package catalog

// DefaultItems returns the stock generator table.
func DefaultItems() map[string]Item {
	return map[string]Item{
		"passiveMaker":  {Name: "The Gub", BaseCost: 100, Rate: 1},
		"guberator":     {Name: "Guberator", BaseCost: 500, Rate: 5},
		"gubmill":       {Name: "Gubmill", BaseCost: 2000, Rate: 20},
		"gubsolar":      {Name: "Solar Gub Panels", BaseCost: 10_000, Rate: 100},
		"gubfactory":    {Name: "Gubactory", BaseCost: 50_000, Rate: 500},
		"gubhydro":      {Name: "Hydro Gub Plant", BaseCost: 250_000, Rate: 2500},
		"gubnuclear":    {Name: "Nuclear Gub Plant", BaseCost: 1_000_000, Rate: 10_000},
		"gubquantum":    {Name: "Quantum Gub Computer", BaseCost: 5_000_000, Rate: 50_000},
		"gubai":         {Name: "GUB AI", BaseCost: 25_000_000, Rate: 250_000},
		"gubclone":      {Name: "Gub Cloning Facility", BaseCost: 125_000_000, Rate: 1_250_000},
		"gubspace":      {Name: "Gub Space Program", BaseCost: 625_000_000, Rate: 6_250_000},
		"intergalactic": {Name: "Intergalactic Gub", BaseCost: 3_125_000_000, Rate: 31_250_000},
	}
}

// DefaultUpgrades returns the stock upgrade table.
func DefaultUpgrades() map[string]Upgrade {
	return map[string]Upgrade{
		"upg1": {Name: "Gub Polish", Cost: 10_000, Target: "passiveMaker", UnlockAt: 25, Multiplier: 2},
		"upg2": {Name: "Guberator Overclock", Cost: 50_000, Target: "guberator", UnlockAt: 25, Multiplier: 2},
		"upg3": {Name: "Gubmill Sails", Cost: 200_000, Target: "gubmill", UnlockAt: 25, Multiplier: 2},
	}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(DefaultItems(), DefaultUpgrades())
	if err != nil {
		panic("catalog: built-in tables are invalid: " + err.Error())
	}
	return c
}
