package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/pricing"
)

var unitPrefixPattern = regexp.MustCompile(`^#?\d+\s*-\s*`)

var streetAbbreviations = []struct {
	abbr string
	full string
}{
	{"St", "Street"},
	{"Ave", "Avenue"},
	{"Rd", "Road"},
	{"Blvd", "Boulevard"},
	{"Dr", "Drive"},
	{"Hwy", "Highway"},
	{"Pkwy", "Parkway"},
}

// addressVariants returns the address spellings to try against the store
// locator, most specific first: the configured address, its first comma
// segment, the address without a leading unit number, a province-suffixed
// form, and abbreviation-swapped forms of each. Order is stable and
// duplicates are removed.
func addressVariants(address, province string) []string {
	base := strings.Join(strings.Fields(address), " ")
	if base == "" {
		return nil
	}
	candidates := []string{base}
	if segment := strings.TrimSpace(strings.SplitN(base, ",", 2)[0]); segment != base && segment != "" {
		candidates = append(candidates, segment)
	}
	for _, c := range candidates[:len(candidates):len(candidates)] {
		if stripped := unitPrefixPattern.ReplaceAllString(c, ""); stripped != c && stripped != "" {
			candidates = append(candidates, stripped)
		}
	}
	if province != "" {
		for _, c := range candidates[:len(candidates):len(candidates)] {
			if !strings.Contains(strings.ToUpper(c), strings.ToUpper(province)) {
				candidates = append(candidates, c+", "+province)
			}
		}
	}
	for _, c := range candidates[:len(candidates):len(candidates)] {
		if expanded := swapAbbreviations(c, true); expanded != c {
			candidates = append(candidates, expanded)
		}
		if contracted := swapAbbreviations(c, false); contracted != c {
			candidates = append(candidates, contracted)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// swapAbbreviations rewrites street-type tokens, expanding (St -> Street)
// or contracting (Street -> St) depending on expand.
func swapAbbreviations(address string, expand bool) string {
	words := strings.Fields(address)
	for i, w := range words {
		trimmed := strings.TrimSuffix(w, ".")
		for _, sub := range streetAbbreviations {
			from, to := sub.abbr, sub.full
			if !expand {
				from, to = sub.full, sub.abbr
			}
			if strings.EqualFold(trimmed, from) {
				words[i] = matchCase(trimmed, to)
			}
		}
	}
	return strings.Join(words, " ")
}

func matchCase(src, repl string) string {
	if src == strings.ToUpper(src) {
		return strings.ToUpper(repl)
	}
	return repl
}

// selectLocation drives the store picker until the storefront confirms it is
// serving the target location. Each address variant gets one full attempt;
// the confirmation text is read back and checked against the target before a
// variant is accepted.
func (c *Crawler) selectLocation(ctx context.Context, target pricing.LocationTarget) error {
	variants := addressVariants(target.Address, target.Province)
	if len(variants) == 0 {
		return fmt.Errorf("select location: store %q has no address", target.StoreName)
	}
	sel := c.selectors.Location
	var lastErr error
	for _, variant := range variants {
		stepCtx, cancel := context.WithTimeout(ctx, c.cfg.StepTimeout)
		err := chromedp.Run(stepCtx,
			chromedp.WaitVisible(sel.SearchInput, chromedp.ByQuery),
			chromedp.Clear(sel.SearchInput, chromedp.ByQuery),
			chromedp.SendKeys(sel.SearchInput, variant, chromedp.ByQuery),
			chromedp.Click(sel.SearchButton, chromedp.ByQuery),
			chromedp.WaitVisible(sel.FirstResult, chromedp.ByQuery),
			chromedp.Click(sel.FirstResult, chromedp.ByQuery),
			chromedp.Click(sel.ConfirmButton, chromedp.ByQuery),
		)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("variant %q: %w", variant, err)
			c.logger.Debug("location variant rejected",
				zap.String("store", target.StoreName),
				zap.String("variant", variant),
				zap.Error(err),
			)
			continue
		}

		current, err := c.currentStoreText(ctx)
		if err != nil {
			lastErr = fmt.Errorf("variant %q: read back store: %w", variant, err)
			continue
		}
		if locationConfirmed(current, target, variant) {
			c.logger.Debug("location selected",
				zap.String("store", target.StoreName),
				zap.String("variant", variant),
				zap.String("confirmed", current),
			)
			return nil
		}
		lastErr = fmt.Errorf("variant %q: storefront selected %q instead", variant, current)
	}
	return fmt.Errorf("select location for %q: %w", target.StoreName, lastErr)
}

func (c *Crawler) currentStoreText(ctx context.Context) (string, error) {
	stepCtx, cancel := context.WithTimeout(ctx, c.cfg.StepTimeout)
	defer cancel()
	var text string
	err := chromedp.Run(stepCtx,
		chromedp.WaitVisible(c.selectors.Location.CurrentStore, chromedp.ByQuery),
		chromedp.Text(c.selectors.Location.CurrentStore, &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// locationConfirmed checks the storefront's read-back text against the
// target. The street number is the strongest signal; the store name is
// accepted as a fallback for storefronts that display names only.
func locationConfirmed(readBack string, target pricing.LocationTarget, variant string) bool {
	if readBack == "" {
		return false
	}
	lower := strings.ToLower(readBack)
	if num := streetNumber(variant); num != "" && strings.Contains(lower, num) {
		return true
	}
	if target.StoreName != "" && strings.Contains(lower, strings.ToLower(target.StoreName)) {
		return true
	}
	return false
}

func streetNumber(address string) string {
	fields := strings.Fields(unitPrefixPattern.ReplaceAllString(address, ""))
	if len(fields) == 0 {
		return ""
	}
	first := fields[0]
	for _, r := range first {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return first
}

// navigateTimeout bounds the initial page load separately from individual
// picker steps.
func (c *Crawler) navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}
