package scrape

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Preflight probes every category URL with a plain HTTP fetch before any
// browser session is spent on it. It catches moved pages and storefront
// outages cheaply; JavaScript-rendered content is not evaluated, so only
// the response status and the raw markup are checked.
func (c *Crawler) Preflight(categories []string) error {
	if len(categories) == 0 {
		return nil
	}
	collector := colly.NewCollector(colly.MaxDepth(1))
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}

	var (
		mu       sync.Mutex
		statuses = make(map[string]int, len(categories))
		failures = make(map[string]error, len(categories))
		byURL    = make(map[string]string, len(categories))
	)
	collector.OnResponse(func(resp *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		if category, ok := byURL[resp.Request.URL.String()]; ok {
			statuses[category] = resp.StatusCode
		}
	})
	collector.OnError(func(resp *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if category, ok := byURL[resp.Request.URL.String()]; ok {
			failures[category] = err
		}
	})

	base := strings.TrimRight(c.cfg.BaseURL, "/")
	for _, category := range categories {
		url := base + c.selectors.ForCategory(category).Path
		byURL[url] = category
		if err := collector.Visit(url); err != nil {
			mu.Lock()
			failures[category] = err
			mu.Unlock()
		}
	}
	collector.Wait()

	var unreachable []string
	for _, category := range categories {
		if err, ok := failures[category]; ok {
			c.logger.Warn("category preflight failed", zap.String("category", category), zap.Error(err))
			unreachable = append(unreachable, category)
			continue
		}
		if code := statuses[category]; code >= 400 || code == 0 {
			c.logger.Warn("category preflight returned bad status",
				zap.String("category", category),
				zap.Int("status", code),
			)
			unreachable = append(unreachable, category)
		}
	}
	if len(unreachable) == len(categories) {
		return fmt.Errorf("preflight: no category page reachable (%s)", strings.Join(unreachable, ", "))
	}
	if len(unreachable) > 0 {
		c.logger.Warn("preflight found unreachable categories", zap.Strings("categories", unreachable))
	}
	return nil
}
