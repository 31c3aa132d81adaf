package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlabs/pricewatch/internal/pricing"
)

func TestNegotiateSchemaMutualLevel(t *testing.T) {
	t.Parallel()

	schema, err := NegotiateSchema(
		[]pricing.ExpectedPrice{{ProductName: "Pizza", Category: "pizzas", Level: pricing.PL1, Price: decimal.New(1599, -2)}},
		[]pricing.ScrapedPrice{{ProductName: "Pizza", Category: "pizzas", Level: pricing.PL1, StoreName: "Downtown"}},
	)
	require.NoError(t, err)
	require.True(t, schema.UseLevel)
	require.False(t, schema.UseProvince)
	require.Contains(t, schema.Columns, "pricing_level")
	require.NotContains(t, schema.Columns, "province")
}

func TestNegotiateSchemaMutualProvince(t *testing.T) {
	t.Parallel()

	schema, err := NegotiateSchema(
		[]pricing.ExpectedPrice{{ProductName: "Pizza", Category: "pizzas", Province: "BC"}},
		[]pricing.ScrapedPrice{{ProductName: "Pizza", Category: "pizzas", Province: "BC", Level: pricing.PL1}},
	)
	require.NoError(t, err)
	require.False(t, schema.UseLevel)
	require.True(t, schema.UseProvince)
}

func TestNegotiateSchemaDisjointIdentifiers(t *testing.T) {
	t.Parallel()

	schema, err := NegotiateSchema(
		[]pricing.ExpectedPrice{{ProductName: "Pizza", Category: "pizzas", Province: "BC"}},
		[]pricing.ScrapedPrice{{ProductName: "Pizza", Category: "pizzas", Level: pricing.PL1}},
	)
	require.NoError(t, err)
	require.True(t, schema.UseLevel)
	require.True(t, schema.UseProvince)
}

func TestNegotiateSchemaNoIdentifiers(t *testing.T) {
	t.Parallel()

	_, err := NegotiateSchema(
		[]pricing.ExpectedPrice{{ProductName: "Pizza", Category: "pizzas"}},
		[]pricing.ScrapedPrice{{ProductName: "Pizza", Category: "pizzas", Level: pricing.PL1}},
	)
	require.ErrorIs(t, err, ErrNoLocationKey)
}

func TestNegotiateSchemaEmptyScrapedSide(t *testing.T) {
	t.Parallel()

	schema, err := NegotiateSchema(
		[]pricing.ExpectedPrice{{ProductName: "Pizza", Category: "pizzas", Level: pricing.PL1}},
		nil,
	)
	require.NoError(t, err)
	require.True(t, schema.UseLevel)
	require.False(t, schema.UseProvince)
}

func TestNegotiateSchemaEmptyExpectedSide(t *testing.T) {
	t.Parallel()

	schema, err := NegotiateSchema(
		nil,
		[]pricing.ScrapedPrice{{ProductName: "Pizza", Category: "pizzas", Province: "BC", StoreName: "Downtown"}},
	)
	require.NoError(t, err)
	require.True(t, schema.UseProvince)
	require.Contains(t, schema.Columns, "store_name")
}

func TestNegotiateSchemaBothSidesEmpty(t *testing.T) {
	t.Parallel()

	schema, err := NegotiateSchema(nil, nil)
	require.NoError(t, err)
	require.False(t, schema.UseLevel)
	require.False(t, schema.UseProvince)
}

func TestNegotiateSchemaColumnOrder(t *testing.T) {
	t.Parallel()

	schema, err := NegotiateSchema(
		[]pricing.ExpectedPrice{{ProductName: "Pizza", Category: "pizzas", Level: pricing.PL1}},
		[]pricing.ScrapedPrice{{ProductName: "Pizza", Category: "pizzas", Level: pricing.PL1, StoreName: "Downtown"}},
	)
	require.NoError(t, err)
	require.Equal(t, []string{
		"product_name", "category", "pricing_level", "store_name",
		"expected_price", "actual_price", "difference", "status",
	}, schema.Columns)
}
