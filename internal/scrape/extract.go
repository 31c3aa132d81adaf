package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/pricing"
)

// rawItem is the per-tile extraction result handed back from the page.
type rawItem struct {
	NameCandidates []string `json:"names"`
	PriceText      string   `json:"price"`
	FullText       string   `json:"text"`
}

const (
	minNameLength = 3
	maxNameLength = 80
)

// garbagePhrases disqualify a text fragment from being a product name.
// Menu tiles mix call-to-action copy in with the name; these are the ones
// the storefront is known to use.
var garbagePhrases = []string{
	"add to cart",
	"add to order",
	"order now",
	"customize",
	"select options",
	"choose",
	"view details",
	"sold out",
	"calories",
}

// scrapeCategory loads one category page and extracts every visible product
// tile into scraped price records. When a category-specific selector set
// matches nothing, the generic defaults get one more pass on the same page
// before the category counts as failed.
func (c *Crawler) scrapeCategory(ctx context.Context, target pricing.LocationTarget, category string) ([]pricing.ScrapedPrice, error) {
	sel := c.selectors.ForCategory(category)
	url := strings.TrimRight(c.cfg.BaseURL, "/") + sel.Path
	if err := c.navigate(ctx, url); err != nil {
		return nil, err
	}
	c.expandSections(ctx, sel)

	items, err := c.extractTiles(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("extract category %q: %w", category, err)
	}
	if len(items) == 0 && c.selectors.HasOverride(category) {
		c.logger.Debug("category selectors matched nothing, retrying with generic set",
			zap.String("category", category),
		)
		items, err = c.extractTiles(ctx, c.selectors.Generic(sel.Path))
		if err != nil {
			return nil, fmt.Errorf("extract category %q with generic selectors: %w", category, err)
		}
	}
	return c.recordsFromItems(target, category, items), nil
}

func (c *Crawler) extractTiles(ctx context.Context, sel CategorySelectors) ([]rawItem, error) {
	stepCtx, cancel := context.WithTimeout(ctx, c.cfg.StepTimeout)
	defer cancel()
	var payload string
	err := chromedp.Run(stepCtx,
		chromedp.WaitVisible(sel.Container, chromedp.ByQuery),
		chromedp.Evaluate(extractScript(sel), &payload),
	)
	if err != nil {
		return nil, err
	}
	var items []rawItem
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, fmt.Errorf("decode tile payload: %w", err)
	}
	return items, nil
}

// expandSections clicks open any collapsed menu sections. Best effort: a
// page without them is the normal case.
func (c *Crawler) expandSections(ctx context.Context, sel CategorySelectors) {
	if sel.Expand == "" {
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, c.cfg.StepTimeout)
	defer cancel()
	script := fmt.Sprintf(`document.querySelectorAll(%q).forEach((el) => el.click()); true`, sel.Expand)
	var clicked bool
	if err := chromedp.Run(stepCtx, chromedp.Evaluate(script, &clicked)); err != nil {
		c.logger.Debug("expand sections failed", zap.String("selector", sel.Expand), zap.Error(err))
	}
}

// extractScript builds the in-page collector. It returns a JSON string so
// the shape crossing the devtools boundary stays a plain string.
func extractScript(sel CategorySelectors) string {
	names, _ := json.Marshal(sel.Name)
	return fmt.Sprintf(`(() => {
	const nameSelectors = %s;
	const items = [];
	document.querySelectorAll(%q).forEach((tile) => {
		const names = [];
		for (const ns of nameSelectors) {
			const el = tile.querySelector(ns);
			if (el) { names.push(el.textContent); }
		}
		const priceEl = tile.querySelector(%q);
		items.push({
			names: names,
			price: priceEl ? priceEl.textContent : "",
			text: tile.textContent,
		});
	});
	return JSON.stringify(items);
})()`, names, sel.Item, sel.Price)
}

// recordsFromItems converts raw tiles to price records, dropping tiles with
// no recognizable name or price.
func (c *Crawler) recordsFromItems(target pricing.LocationTarget, category string, items []rawItem) []pricing.ScrapedPrice {
	now := c.clock.Now()
	normalized := pricing.NormalizeCategory(category)
	records := make([]pricing.ScrapedPrice, 0, len(items))
	for _, item := range items {
		name := extractName(item)
		if name == "" {
			c.logger.Debug("menu tile without usable name",
				zap.String("category", category),
				zap.String("text", snippet(item.FullText)),
			)
			continue
		}
		raw := item.PriceText
		if strings.TrimSpace(raw) == "" {
			raw = item.FullText
		}
		price, err := pricing.ParsePrice(raw)
		if err != nil {
			c.logger.Debug("menu tile without price",
				zap.String("category", category),
				zap.String("product", name),
			)
			continue
		}
		records = append(records, pricing.ScrapedPrice{
			Province:    target.Province,
			Level:       target.Level,
			StoreName:   target.StoreName,
			Category:    normalized,
			ProductName: name,
			Price:       price,
			RawText:     strings.TrimSpace(raw),
			ScrapedAt:   now,
		})
	}
	return records
}

// extractName picks the product name from a tile: the first acceptable
// dedicated name element wins, otherwise the first acceptable line of the
// tile's full text.
func extractName(item rawItem) string {
	for _, candidate := range item.NameCandidates {
		if name := cleanName(candidate); acceptName(name) {
			return name
		}
	}
	for _, line := range strings.Split(item.FullText, "\n") {
		if name := cleanName(line); acceptName(name) {
			return name
		}
	}
	return ""
}

func cleanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// acceptName filters out fragments that cannot be product names: too short
// or long, no letters, price-only text, or known call-to-action copy.
func acceptName(s string) bool {
	if len(s) < minNameLength || len(s) > maxNameLength {
		return false
	}
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return false
	}
	if strings.Contains(s, "$") {
		return false
	}
	lower := strings.ToLower(s)
	for _, phrase := range garbagePhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	return true
}

func snippet(s string) string {
	s = cleanName(s)
	if len(s) > 60 {
		return s[:60]
	}
	return s
}
