package reconcile

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/match"
	"github.com/storefrontlabs/pricewatch/internal/pricing"
)

// Status classifies one comparison row.
type Status string

// Verdicts, exactly one per row.
const (
	StatusPass            Status = "PASS"
	StatusFail            Status = "FAIL"
	StatusMissingActual   Status = "MISSING_ACTUAL"
	StatusMissingExpected Status = "MISSING_EXPECTED"
)

// PassRateNA is the pass-rate sentinel reported when no rows were compared.
const PassRateNA = "N/A"

// Row is one verdict: a matched pair or an unmatched product from either
// side.
type Row struct {
	ProductName string               `json:"product_name"`
	ScrapedName string               `json:"scraped_name,omitempty"`
	Category    string               `json:"category"`
	Level       pricing.PricingLevel `json:"pricing_level,omitempty"`
	Province    string               `json:"province,omitempty"`
	StoreName   string               `json:"store_name,omitempty"`
	Expected    *decimal.Decimal     `json:"expected_price,omitempty"`
	Actual      *decimal.Decimal     `json:"actual_price,omitempty"`
	Difference  *decimal.Decimal     `json:"difference,omitempty"`
	Status      Status               `json:"status"`
}

// Summary aggregates verdict counts.
type Summary struct {
	Total           int    `json:"total"`
	Passed          int    `json:"passed"`
	Failed          int    `json:"failed"`
	MissingActual   int    `json:"missing_actual"`
	MissingExpected int    `json:"missing_expected"`
	PassRate        string `json:"pass_rate"`
}

// ProvinceSummary is the per-province breakdown, present when the join
// carried a province column.
type ProvinceSummary struct {
	Province string `json:"province"`
	Summary
}

// Report is the full reconciliation output.
type Report struct {
	Schema        Schema            `json:"schema"`
	Rows          []Row             `json:"rows"`
	Discrepancies []Row             `json:"discrepancies"`
	Summary       Summary           `json:"summary"`
	Provinces     []ProvinceSummary `json:"provinces,omitempty"`
}

// DefaultTolerance is the maximum absolute difference still counted a PASS.
var DefaultTolerance = decimal.RequireFromString("0.01")

// Engine reconciles scraped prices against the expected table. Safe for
// concurrent use; it holds no mutable state.
type Engine struct {
	matcher   *match.Matcher
	tolerance decimal.Decimal
	logger    *zap.Logger
}

// NewEngine builds an Engine. A zero tolerance selects DefaultTolerance and
// a nil matcher selects the default threshold.
func NewEngine(matcher *match.Matcher, tolerance decimal.Decimal, logger *zap.Logger) *Engine {
	if matcher == nil {
		matcher = match.New(0)
	}
	if tolerance.IsZero() {
		tolerance = DefaultTolerance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{matcher: matcher, tolerance: tolerance, logger: logger}
}

// NegotiateSchema resolves the join-key set for the two datasets. Exposed so
// callers can fail fast before crawling completes a full comparison pass.
func NegotiateSchema(expected []pricing.ExpectedPrice, scraped []pricing.ScrapedPrice) (Schema, error) {
	exp := make([]expectedPresence, 0, len(expected))
	for _, row := range expected {
		exp = append(exp, expectedPresence{
			level:    row.Level != "",
			province: row.Province != "",
		})
	}
	scr := make([]scrapedPresence, 0, len(scraped))
	for _, row := range scraped {
		scr = append(scr, scrapedPresence{
			level:    row.Level != "",
			province: row.Province != "",
			store:    row.StoreName != "",
		})
	}
	return Negotiate(exp, scr)
}

type bucketKey struct {
	category string
	level    pricing.PricingLevel
	province string
}

// Reconcile joins the two datasets and produces the verdict table, the
// discrepancy subset, and summaries. Reconciling the same inputs twice
// yields identical reports.
func (e *Engine) Reconcile(expected []pricing.ExpectedPrice, scraped []pricing.ScrapedPrice) (Report, error) {
	schema, err := NegotiateSchema(expected, scraped)
	if err != nil {
		return Report{}, fmt.Errorf("negotiate schema: %w", err)
	}

	expBuckets := make(map[bucketKey][]int)
	for i, row := range expected {
		key := e.keyFor(schema, pricing.NormalizeCategory(row.Category), row.Level, row.Province)
		expBuckets[key] = append(expBuckets[key], i)
	}
	scrBuckets := make(map[bucketKey][]int)
	for i, row := range scraped {
		key := e.keyFor(schema, pricing.NormalizeCategory(row.Category), row.Level, row.Province)
		scrBuckets[key] = append(scrBuckets[key], i)
	}

	keys := make([]bucketKey, 0, len(expBuckets)+len(scrBuckets))
	seen := make(map[bucketKey]bool)
	for k := range expBuckets {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range scrBuckets {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.category != b.category {
			return a.category < b.category
		}
		if a.level != b.level {
			return a.level < b.level
		}
		return a.province < b.province
	})

	var rows []Row
	for _, key := range keys {
		rows = append(rows, e.reconcileBucket(expected, scraped, expBuckets[key], scrBuckets[key])...)
	}
	sortRows(rows)

	report := Report{Schema: schema, Rows: rows}
	for _, row := range rows {
		if row.Status != StatusPass {
			report.Discrepancies = append(report.Discrepancies, row)
		}
	}
	report.Summary = summarize(rows)
	if schema.UseProvince || columnPresent(schema, "province") {
		report.Provinces = provinceSummaries(rows)
	}
	return report, nil
}

func (e *Engine) keyFor(schema Schema, category string, level pricing.PricingLevel, province string) bucketKey {
	key := bucketKey{category: category}
	if schema.UseLevel {
		key.level = level
	}
	if schema.UseProvince {
		key.province = province
	}
	return key
}

// reconcileBucket pairs scraped records with expected rows inside one join
// bucket. Expected rows are price-card definitions, so one expected row may
// match records from several stores; it only counts MISSING_ACTUAL when no
// record matched it at all.
func (e *Engine) reconcileBucket(expected []pricing.ExpectedPrice, scraped []pricing.ScrapedPrice, expIdx, scrIdx []int) []Row {
	expByNorm := make(map[string]int, len(expIdx))
	expNames := make([]string, 0, len(expIdx))
	for _, i := range expIdx {
		norm := match.Normalize(expected[i].ProductName)
		if _, ok := expByNorm[norm]; !ok {
			expByNorm[norm] = i
			expNames = append(expNames, expected[i].ProductName)
		}
	}

	ordered := append([]int(nil), scrIdx...)
	sort.Slice(ordered, func(a, b int) bool {
		na, nb := match.Normalize(scraped[ordered[a]].ProductName), match.Normalize(scraped[ordered[b]].ProductName)
		if na != nb {
			return na < nb
		}
		return scraped[ordered[a]].StoreName < scraped[ordered[b]].StoreName
	})

	matched := make(map[int]bool, len(expIdx))
	var rows []Row
	for _, si := range ordered {
		rec := scraped[si]
		norm := match.Normalize(rec.ProductName)
		ei, ok := expByNorm[norm]
		if !ok {
			if best, found := e.matcher.Best(rec.ProductName, expNames); found {
				ei, ok = expByNorm[match.Normalize(best)], true
			}
		}
		if !ok {
			actual := rec.Price
			rows = append(rows, Row{
				ProductName: rec.ProductName,
				Category:    pricing.NormalizeCategory(rec.Category),
				Level:       rec.Level,
				Province:    rec.Province,
				StoreName:   rec.StoreName,
				Actual:      &actual,
				Status:      StatusMissingExpected,
			})
			continue
		}
		matched[ei] = true
		rows = append(rows, e.compareRow(expected[ei], rec))
	}

	for _, i := range expIdx {
		if matched[i] {
			continue
		}
		// Duplicate expected names inside a bucket collapse onto the first
		// occurrence; only that one can report MISSING_ACTUAL.
		if expByNorm[match.Normalize(expected[i].ProductName)] != i {
			continue
		}
		exp := expected[i]
		price := exp.Price
		rows = append(rows, Row{
			ProductName: exp.ProductName,
			Category:    pricing.NormalizeCategory(exp.Category),
			Level:       exp.Level,
			Province:    exp.Province,
			Expected:    &price,
			Status:      StatusMissingActual,
		})
	}
	return rows
}

func (e *Engine) compareRow(exp pricing.ExpectedPrice, rec pricing.ScrapedPrice) Row {
	expectedPrice := exp.Price
	actualPrice := rec.Price
	diff := actualPrice.Sub(expectedPrice)
	status := StatusPass
	if diff.Abs().Cmp(e.tolerance) > 0 {
		status = StatusFail
	}
	row := Row{
		ProductName: exp.ProductName,
		Category:    pricing.NormalizeCategory(exp.Category),
		Level:       exp.Level,
		Province:    exp.Province,
		StoreName:   rec.StoreName,
		Expected:    &expectedPrice,
		Actual:      &actualPrice,
		Difference:  &diff,
		Status:      status,
	}
	if match.Normalize(rec.ProductName) != match.Normalize(exp.ProductName) {
		row.ScrapedName = rec.ProductName
	}
	if row.Level == "" {
		row.Level = rec.Level
	}
	if row.Province == "" {
		row.Province = rec.Province
	}
	return row
}

func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Province != b.Province {
			return a.Province < b.Province
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.ProductName != b.ProductName {
			return a.ProductName < b.ProductName
		}
		return a.StoreName < b.StoreName
	})
}

func summarize(rows []Row) Summary {
	s := Summary{Total: len(rows)}
	for _, row := range rows {
		switch row.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		case StatusMissingActual:
			s.MissingActual++
		case StatusMissingExpected:
			s.MissingExpected++
		}
	}
	if s.Total == 0 {
		s.PassRate = PassRateNA
	} else {
		s.PassRate = fmt.Sprintf("%.1f%%", float64(s.Passed)/float64(s.Total)*100)
	}
	return s
}

func provinceSummaries(rows []Row) []ProvinceSummary {
	grouped := make(map[string][]Row)
	for _, row := range rows {
		if row.Province == "" {
			continue
		}
		grouped[row.Province] = append(grouped[row.Province], row)
	}
	provinces := make([]string, 0, len(grouped))
	for p := range grouped {
		provinces = append(provinces, p)
	}
	sort.Strings(provinces)

	out := make([]ProvinceSummary, 0, len(provinces))
	for _, p := range provinces {
		out = append(out, ProvinceSummary{Province: p, Summary: summarize(grouped[p])})
	}
	return out
}

func columnPresent(schema Schema, name string) bool {
	for _, col := range schema.Columns {
		if col == name {
			return true
		}
	}
	return false
}
