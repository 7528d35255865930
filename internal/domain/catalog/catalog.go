// Package catalog holds the static generator and upgrade tables.
//
// A Catalog is loaded once at process start and never mutated afterwards, so
// it is safe to share between goroutines without locking.
package catalog

import (
	"fmt"
	"math"
	"sort"
)

// DefaultCostMultiplier is the geometric price growth per owned unit.
const DefaultCostMultiplier = 1.15

// Item describes a passive-income generator.
type Item struct {
	Name           string  `koanf:"name" json:"name"`
	BaseCost       int64   `koanf:"base_cost" json:"baseCost"`
	Rate           float64 `koanf:"rate" json:"rate"`
	CostMultiplier float64 `koanf:"cost_multiplier" json:"costMultiplier"`
}

// Upgrade describes a one-time purchase that multiplies a target item's rate.
type Upgrade struct {
	Name       string  `koanf:"name" json:"name"`
	Cost       int64   `koanf:"cost" json:"cost"`
	Target     string  `koanf:"target" json:"target"`
	UnlockAt   int64   `koanf:"unlock_at" json:"unlockAt"`
	Multiplier float64 `koanf:"multiplier" json:"multiplier"`
}

// Catalog maps ids to items and upgrades.
type Catalog struct {
	Items    map[string]Item    `json:"items"`
	Upgrades map[string]Upgrade `json:"upgrades"`
}

// New builds a validated catalog. A zero CostMultiplier defaults to
// DefaultCostMultiplier and a zero upgrade Multiplier defaults to 1.
func New(items map[string]Item, upgrades map[string]Upgrade) (*Catalog, error) {
	c := &Catalog{
		Items:    make(map[string]Item, len(items)),
		Upgrades: make(map[string]Upgrade, len(upgrades)),
	}
	for id, it := range items {
		if it.CostMultiplier == 0 {
			it.CostMultiplier = DefaultCostMultiplier
		}
		c.Items[id] = it
	}
	for id, up := range upgrades {
		if up.Multiplier == 0 {
			up.Multiplier = 1
		}
		c.Upgrades[id] = up
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports the first inconsistency found, in id order.
func (c *Catalog) Validate() error {
	if len(c.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidCatalog)
	}
	for _, id := range c.ItemIDs() {
		it := c.Items[id]
		switch {
		case id == "":
			return fmt.Errorf("%w: empty item id", ErrInvalidCatalog)
		case it.BaseCost < 1:
			return fmt.Errorf("%w: item %q base_cost must be >= 1", ErrInvalidCatalog, id)
		case it.Rate < 0 || math.IsNaN(it.Rate) || math.IsInf(it.Rate, 0):
			return fmt.Errorf("%w: item %q rate must be finite and >= 0", ErrInvalidCatalog, id)
		case it.CostMultiplier < 1 || math.IsInf(it.CostMultiplier, 0) || math.IsNaN(it.CostMultiplier):
			return fmt.Errorf("%w: item %q cost_multiplier must be finite and >= 1", ErrInvalidCatalog, id)
		}
	}
	for _, id := range c.UpgradeIDs() {
		up := c.Upgrades[id]
		switch {
		case id == "":
			return fmt.Errorf("%w: empty upgrade id", ErrInvalidCatalog)
		case up.Cost < 0:
			return fmt.Errorf("%w: upgrade %q cost must be >= 0", ErrInvalidCatalog, id)
		case up.UnlockAt < 0:
			return fmt.Errorf("%w: upgrade %q unlock_at must be >= 0", ErrInvalidCatalog, id)
		case up.Multiplier <= 0 || math.IsInf(up.Multiplier, 0) || math.IsNaN(up.Multiplier):
			return fmt.Errorf("%w: upgrade %q multiplier must be finite and > 0", ErrInvalidCatalog, id)
		}
		if _, ok := c.Items[up.Target]; !ok {
			return fmt.Errorf("%w: upgrade %q targets unknown item %q", ErrInvalidCatalog, id, up.Target)
		}
	}
	return nil
}

// Item returns the item with the given id.
func (c *Catalog) Item(id string) (Item, bool) {
	it, ok := c.Items[id]
	return it, ok
}

// Upgrade returns the upgrade with the given id.
func (c *Catalog) Upgrade(id string) (Upgrade, bool) {
	up, ok := c.Upgrades[id]
	return up, ok
}

// ItemIDs returns item ids sorted.
func (c *Catalog) ItemIDs() []string {
	ids := make([]string, 0, len(c.Items))
	for id := range c.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UpgradeIDs returns upgrade ids sorted.
func (c *Catalog) UpgradeIDs() []string {
	ids := make([]string, 0, len(c.Upgrades))
	for id := range c.Upgrades {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PassiveRate returns gubs per second for the given holdings. Each owned
// upgrade multiplies the rate of its target item. Unknown ids are ignored.
func (c *Catalog) PassiveRate(owned map[string]int64, upgrades map[string]bool) float64 {
	boost := make(map[string]float64)
	for id, has := range upgrades {
		if !has {
			continue
		}
		up, ok := c.Upgrades[id]
		if !ok {
			continue
		}
		if b, seen := boost[up.Target]; seen {
			boost[up.Target] = b * up.Multiplier
		} else {
			boost[up.Target] = up.Multiplier
		}
	}

	var rate float64
	for id, n := range owned {
		it, ok := c.Items[id]
		if !ok || n <= 0 {
			continue
		}
		r := float64(n) * it.Rate
		if b, ok := boost[id]; ok {
			r *= b
		}
		rate += r
	}
	return rate
}
