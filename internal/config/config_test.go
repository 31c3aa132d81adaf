package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storefrontlabs/pricewatch/internal/pricing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
crawler:
  base_url: https://order.example.com
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, int64(2), cfg.Crawler.MaxSessions)
	require.Equal(t, 45*time.Second, cfg.Crawler.NavigationTimeout)
	require.Equal(t, 0.72, cfg.Matching.Threshold)
	require.Equal(t, "0.01", cfg.Reconcile.Tolerance)
	require.Equal(t, 4, cfg.Jobs.MaxActive)
	require.Equal(t, "local", cfg.Storage.Backend)
	require.True(t, cfg.Crawler.Headless)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
server:
  addr: ":9090"
  api_key: sekrit
crawler:
  base_url: https://order.example.com
  max_sessions: 5
  capture_cart: true
jobs:
  max_active: 2
  retention: 1h
storage:
  backend: memory
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "sekrit", cfg.Server.APIKey)
	require.Equal(t, int64(5), cfg.Crawler.MaxSessions)
	require.True(t, cfg.Crawler.CaptureCart)
	require.Equal(t, 2, cfg.Jobs.MaxActive)
	require.Equal(t, time.Hour, cfg.Jobs.Retention)
	require.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoadSelectorOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
crawler:
  base_url: https://order.example.com
  selectors:
    location:
      search_input: "#store-finder input"
    default:
      price: ".price-tag"
    categories:
      beverages:
        path: /menu/drinks
        item: .drink-card
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "#store-finder input", cfg.Crawler.Selectors.Location.SearchInput)
	require.Equal(t, ".price-tag", cfg.Crawler.Selectors.Default.Price)
	require.Equal(t, "/menu/drinks", cfg.Crawler.Selectors.Categories["beverages"].Path)
	require.Equal(t, ".drink-card", cfg.Crawler.Selectors.Categories["beverages"].Item)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PRICEWATCH_SERVER_ADDR", ":7070")
	path := writeFile(t, t.TempDir(), "config.yaml", `
crawler:
  base_url: https://order.example.com
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Server.Addr)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Crawler:       CrawlerConfig{BaseURL: "https://order.example.com"},
			Matching:      MatchingConfig{Threshold: 0.72},
			Storage:       StorageConfig{Backend: "memory"},
			LocationsFile: "locations.yaml",
			ExpectedFile:  "expected.json",
		}
	}

	cfg := base()
	cfg.Crawler.BaseURL = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Matching.Threshold = 1.5
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Backend = "s3"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Backend = "gcs"
	require.Error(t, cfg.Validate())
	cfg.Storage.Bucket = "pricewatch"
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Database.Enabled = true
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.PubSub.Enabled = true
	require.Error(t, cfg.Validate())
}

func TestLoadLocations(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "locations.yaml", `
locations:
  - province: BC
    store_name: Vancouver Broadway
    address: 123 Broadway W
  - province: SK
    pricing_level: PL2_B
    store_name: Saskatoon Central
    address: 88 Central Ave
`)
	locations, err := LoadLocations(path)
	require.NoError(t, err)
	require.Len(t, locations, 2)
	// Level backfilled from the province registry.
	require.Equal(t, pricing.PL1, locations[0].Level)
	require.Equal(t, pricing.PL2B, locations[1].Level)
}

func TestLoadLocationsRejectsIncompleteEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", `
locations:
  - store_name: Nowhere
    address: 1 Nowhere St
`)
	_, err := LoadLocations(path)
	require.Error(t, err)

	path = writeFile(t, dir, "empty.yaml", "locations: []\n")
	_, err = LoadLocations(path)
	require.Error(t, err)
}

func TestLoadExpected(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "expected.json", `[
  {"product_name": "Classic Pepperoni", "category": "pizzas-meat", "pricing_level": "PL1", "expected_price": "15.99"},
  {"product_name": "Caesar Salad", "category": "salads", "province": "ON", "expected_price": 9.49}
]`)
	rows, err := LoadExpected(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "pizzas", rows[0].Category)
	require.Equal(t, "15.99", rows[0].Price.String())
	require.Equal(t, "9.49", rows[1].Price.String())
}

func TestLoadExpectedRejectsBadRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "missing-name.json", `[{"category": "salads", "expected_price": "9.49"}]`)
	_, err := LoadExpected(path)
	require.Error(t, err)

	path = writeFile(t, dir, "empty.json", `[]`)
	_, err = LoadExpected(path)
	require.Error(t, err)
}
