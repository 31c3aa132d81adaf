// Package reconcile joins scraped prices against the expected price table
// and produces per-row verdicts plus summary statistics.
package reconcile

import "errors"

// ErrNoLocationKey reports that a populated dataset carries neither the fine
// nor the coarse location identifier, so there is nothing to key location
// comparisons on. This is fatal for the whole reconciliation run. An empty
// side is not an error: the run still produces a report, with every row from
// the other side unmatched.
var ErrNoLocationKey = errors.New("no location identifier present in both expected and scraped data")

// preferredColumns is the full output schema in display order. The actual
// output column set is the intersection of this list with the columns the
// negotiated join produced.
var preferredColumns = []string{
	"product_name",
	"category",
	"pricing_level",
	"province",
	"store_name",
	"expected_price",
	"actual_price",
	"difference",
	"status",
}

// Schema is the result of join-key negotiation, resolved once before any
// comparison runs. It records which location identifiers participate in the
// join key and which columns the output carries.
type Schema struct {
	UseLevel     bool
	UseProvince  bool
	UseStoreName bool
	Columns      []string
}

type sidePresence struct {
	level    bool
	province bool
	store    bool
}

// Negotiate inspects both datasets and resolves the mutually available join
// keys. A column counts as present on a side when any row carries it.
func Negotiate(expected []expectedPresence, scraped []scrapedPresence) (Schema, error) {
	var exp, scr sidePresence
	for _, row := range expected {
		exp.level = exp.level || row.level
		exp.province = exp.province || row.province
	}
	for _, row := range scraped {
		scr.level = scr.level || row.level
		scr.province = scr.province || row.province
		scr.store = scr.store || row.store
	}

	s := Schema{
		UseLevel:    exp.level && scr.level,
		UseProvince: exp.province && scr.province,
		// The expected table never carries store names, so the store column
		// joins only if both sides ever grow one. It still appears in output
		// whenever the scraped side has it.
		UseStoreName: false,
	}
	if !s.UseLevel && !s.UseProvince {
		// No identifier is mutual. If each side still carries one of its
		// own, join on the union so the run completes and every row lands
		// as MISSING_ACTUAL or MISSING_EXPECTED. An empty side (every
		// location failed, or no expected table) never blocks the run;
		// only a populated side with no identifier at all leaves nothing
		// to key location on.
		expAny := exp.level || exp.province
		scrAny := scr.level || scr.province
		if (len(expected) > 0 && !expAny) || (len(scraped) > 0 && !scrAny) {
			return Schema{}, ErrNoLocationKey
		}
		s.UseLevel = exp.level || scr.level
		s.UseProvince = exp.province || scr.province
	}

	present := map[string]bool{
		"product_name":   true,
		"category":       true,
		"pricing_level":  exp.level || scr.level,
		"province":       exp.province || scr.province,
		"store_name":     scr.store,
		"expected_price": true,
		"actual_price":   true,
		"difference":     true,
		"status":         true,
	}
	for _, col := range preferredColumns {
		if present[col] {
			s.Columns = append(s.Columns, col)
		}
	}
	return s, nil
}

type expectedPresence struct {
	level    bool
	province bool
}

type scrapedPresence struct {
	level    bool
	province bool
	store    bool
}
