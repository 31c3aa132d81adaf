package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/storefrontlabs/pricewatch/internal/pricing"
)

// LoadExpected reads the expected-price table. The file is a JSON array of
// expected price rows, exported from the pricing team's master sheet.
func LoadExpected(path string) ([]pricing.ExpectedPrice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read expected prices: %w", err)
	}
	var rows []pricing.ExpectedPrice
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse expected prices %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("expected prices %s: no rows", path)
	}
	for i, row := range rows {
		if row.ProductName == "" {
			return nil, fmt.Errorf("expected prices %s: row %d has no product_name", path, i)
		}
		if row.Category == "" {
			return nil, fmt.Errorf("expected prices %s: row %q has no category", path, row.ProductName)
		}
		rows[i].Category = pricing.NormalizeCategory(row.Category)
	}
	return rows, nil
}
