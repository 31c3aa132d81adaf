// Package pricing holds the domain types shared across the validation
// pipeline: location targets, expected prices, scraped records, and the
// helpers that normalize categories and parse displayed prices.
package pricing

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PricingLevel is the fine-grained location identifier used by marketing to
// group stores that share a price card. Provinces map onto levels, but a
// dataset may carry either identifier, never reliably both.
type PricingLevel string

// Known pricing levels.
const (
	PL1  PricingLevel = "PL1"
	PL2  PricingLevel = "PL2"
	PL2B PricingLevel = "PL2_B"
	PL3  PricingLevel = "PL3"
	PL4  PricingLevel = "PL4"
)

// ProvinceLevels maps a province code to its pricing level.
var ProvinceLevels = map[string]PricingLevel{
	"BC": PL1,
	"AB": PL2,
	"SK": PL2B,
	"MB": PL3,
	"ON": PL4,
}

// LevelForProvince resolves the pricing level for a province code, falling
// back to PL1 for unknown provinces.
func LevelForProvince(province string) PricingLevel {
	if lvl, ok := ProvinceLevels[strings.ToUpper(strings.TrimSpace(province))]; ok {
		return lvl
	}
	return PL1
}

var provinceNames = map[string]string{
	"BC": "British Columbia",
	"AB": "Alberta",
	"SK": "Saskatchewan",
	"MB": "Manitoba",
	"ON": "Ontario",
}

// GroupName resolves the display name for a milestone group code. A pricing
// level names the provinces it covers, a province code expands to the full
// province name, and unknown codes fall back to themselves.
func GroupName(code string) string {
	if name, ok := provinceNames[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return name
	}
	var covered []string
	for prov, lvl := range ProvinceLevels {
		if string(lvl) == code {
			covered = append(covered, provinceNames[prov])
		}
	}
	if len(covered) > 0 {
		sort.Strings(covered)
		return strings.Join(covered, ", ")
	}
	return code
}

// LocationTarget is one store the crawler must visit. Immutable once a job
// starts.
type LocationTarget struct {
	Province  string       `json:"province" yaml:"province"`
	Level     PricingLevel `json:"pricing_level" yaml:"pricing_level"`
	StoreName string       `json:"store_name" yaml:"store_name"`
	Address   string       `json:"address" yaml:"address"`
}

// GroupCode returns the code used to group locations for milestone tracking.
// The pricing level is preferred; targets without one fall back to province.
func (t LocationTarget) GroupCode() string {
	if t.Level != "" {
		return string(t.Level)
	}
	return t.Province
}

// ExpectedPrice is one row of the marketing-approved price table. The
// location identifier columns are optional; whichever the source dataset
// carries is kept as-is and resolved during schema negotiation.
type ExpectedPrice struct {
	ProductName string          `json:"product_name"`
	Category    string          `json:"category"`
	Province    string          `json:"province,omitempty"`
	Level       PricingLevel    `json:"pricing_level,omitempty"`
	Price       decimal.Decimal `json:"expected_price"`
}

// ScrapedPrice is one observed product price at one location. Produced once
// per observed product per location visit and never mutated afterwards.
type ScrapedPrice struct {
	Province    string           `json:"province,omitempty"`
	Level       PricingLevel     `json:"pricing_level,omitempty"`
	StoreName   string           `json:"store_name"`
	Category    string           `json:"category"`
	ProductName string           `json:"product_name"`
	Price       decimal.Decimal  `json:"actual_price"`
	RawText     string           `json:"raw_text,omitempty"`
	CartPrice   *decimal.Decimal `json:"cart_price,omitempty"`
	ScrapedAt   time.Time        `json:"scraped_at"`
}

// DefaultCategories is the menu category order the crawler walks when the
// configuration does not override it.
var DefaultCategories = []string{
	"pizzas-meat",
	"pizzas-veggie",
	"pizzas-plant-based",
	"salads",
	"sides",
	"dips",
	"dessert",
	"beverages",
}

// NormalizeCategory collapses the pizza sub-categories into a single
// comparison category so expected rows keyed on "pizzas" match any pizza
// page the crawler visited.
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if strings.HasPrefix(c, "pizzas-") || c == "pizza" {
		return "pizzas"
	}
	return c
}
