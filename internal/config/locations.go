package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/storefrontlabs/pricewatch/internal/pricing"
)

// locationsFile is the on-disk shape of the locations document. It is parsed
// with yaml.v3 directly rather than through viper: viper lowercases map keys,
// which would mangle province codes and pricing levels.
type locationsFile struct {
	Locations []pricing.LocationTarget `yaml:"locations"`
}

// LoadLocations reads the store locations document. Targets without an
// explicit pricing level get the level registered for their province.
func LoadLocations(path string) ([]pricing.LocationTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations file: %w", err)
	}
	var doc locationsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse locations file %s: %w", path, err)
	}
	if len(doc.Locations) == 0 {
		return nil, fmt.Errorf("locations file %s: no locations defined", path)
	}
	for i, loc := range doc.Locations {
		if loc.StoreName == "" {
			return nil, fmt.Errorf("locations file %s: entry %d has no store_name", path, i)
		}
		if loc.Address == "" {
			return nil, fmt.Errorf("locations file %s: store %q has no address", path, loc.StoreName)
		}
		if loc.Province == "" && loc.Level == "" {
			return nil, fmt.Errorf("locations file %s: store %q has neither province nor pricing_level", path, loc.StoreName)
		}
		if loc.Level == "" {
			doc.Locations[i].Level = pricing.LevelForProvince(loc.Province)
		}
	}
	return doc.Locations, nil
}
