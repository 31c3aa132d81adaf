package scrape

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/metrics"
	"github.com/storefrontlabs/pricewatch/internal/pricing"
)

// captureCartPrice adds the first menu item to the cart and reads the cart
// total back. Every step runs under its own timeout so a stuck widget cannot
// stall the whole session. Failures are absorbed: the capture degrades to
// nil and the menu price stands on its own.
func (c *Crawler) captureCartPrice(ctx context.Context, target pricing.LocationTarget, category string) *decimal.Decimal {
	sel := c.selectors.Cart
	type cartStep struct {
		name   string
		action chromedp.Action
	}
	var steps []cartStep
	// Some storefronts require a size or crust pick before the add button
	// activates; empty selectors skip the step.
	if sel.SizeOption != "" {
		steps = append(steps, cartStep{"pick size", chromedp.Click(sel.SizeOption, chromedp.ByQuery)})
	}
	if sel.CrustOption != "" {
		steps = append(steps, cartStep{"pick crust", chromedp.Click(sel.CrustOption, chromedp.ByQuery)})
	}
	steps = append(steps,
		cartStep{"add item", chromedp.Click(sel.AddButton, chromedp.ByQuery)},
		cartStep{"open cart", chromedp.Click(sel.OpenButton, chromedp.ByQuery)},
		cartStep{"wait total", chromedp.WaitVisible(sel.Total, chromedp.ByQuery)},
	)
	for _, step := range steps {
		if err := c.runStep(ctx, step.action); err != nil {
			c.cartFailed(target, category, step.name, err)
			return nil
		}
	}

	var totalText string
	if err := c.runStep(ctx, chromedp.Text(sel.Total, &totalText, chromedp.ByQuery)); err != nil {
		c.cartFailed(target, category, "read total", err)
		return nil
	}
	price, err := pricing.ParsePrice(totalText)
	if err != nil {
		c.cartFailed(target, category, "parse total", fmt.Errorf("%q: %w", totalText, err))
		return nil
	}

	// Best effort: leave the cart empty and closed for the next category.
	if sel.RemoveButton != "" {
		if err := c.runStep(ctx, chromedp.Click(sel.RemoveButton, chromedp.ByQuery)); err != nil {
			c.logger.Debug("cart clear failed", zap.String("store", target.StoreName), zap.Error(err))
		}
	}
	if err := c.runStep(ctx, chromedp.Click(sel.Close, chromedp.ByQuery)); err != nil {
		c.logger.Debug("cart close failed", zap.String("store", target.StoreName), zap.Error(err))
	}

	metrics.ObserveCartCapture(true)
	return &price
}

func (c *Crawler) runStep(ctx context.Context, action chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(ctx, c.cfg.StepTimeout)
	defer cancel()
	return chromedp.Run(stepCtx, action)
}

func (c *Crawler) cartFailed(target pricing.LocationTarget, category, step string, err error) {
	metrics.ObserveCartCapture(false)
	c.logger.Debug("cart capture failed",
		zap.String("store", target.StoreName),
		zap.String("category", category),
		zap.String("step", step),
		zap.Error(err),
	)
}
