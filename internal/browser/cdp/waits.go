// internal/browser/cdp/waits.go
package cdp

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/pagepilot/internal/browser"
)

// WaitLoadState polls the page until it reaches the requested lifecycle
// state or the deadline passes.
func (p *Page) WaitLoadState(ctx context.Context, state string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.cfg.NavigationTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var probe string
	switch state {
	case "domcontentloaded":
		probe = `document.readyState === 'interactive' || document.readyState === 'complete'`
	case "load":
		probe = `document.readyState === 'complete'`
	case "networkidle":
		// Resource-count stability below doubles as the idle signal; here we
		// only gate on the document being fully loaded first.
		probe = `document.readyState === 'complete'`
	default:
		return fmt.Errorf("unknown load state %q", state)
	}

	var lastResources = -1
	for {
		var reached bool
		if err := p.run(waitCtx, chromedp.Evaluate(probe, &reached)); err != nil {
			if waitCtx.Err() != nil {
				return fmt.Errorf("%w: load state %s", browser.ErrReadinessTimeout, state)
			}
			return fmt.Errorf("polling load state: %w", err)
		}

		if reached && state != "networkidle" {
			return nil
		}
		if reached && state == "networkidle" {
			var resources int
			if err := p.run(waitCtx, chromedp.Evaluate(`performance.getEntriesByType('resource').length`, &resources)); err == nil {
				// Two consecutive polls with no new resource fetches.
				if resources == lastResources {
					return nil
				}
				lastResources = resources
			}
		}

		if err := p.pause(waitCtx); err != nil {
			return fmt.Errorf("%w: load state %s", browser.ErrReadinessTimeout, state)
		}
	}
}

// elementProbe captures the readiness-relevant properties of a node in one
// round trip.
type elementProbe struct {
	Found    bool    `json:"found"`
	Disabled bool    `json:"disabled"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// waitElementReady blocks until the node at xpath in the frame's document is
// enabled and its geometry stops moving between polls, or the readiness
// budget expires. Animated and late-enabling controls settle here instead of
// failing the action outright.
func (p *Page) waitElementReady(ctx context.Context, frameIndex int, xpath string) error {
	timeout := p.cfg.ReadinessTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	script := fmt.Sprintf(`(() => {
		const doc = (%s)(%d);
		if (!doc) { return {found: false}; }
		const el = doc.evaluate(%q, doc, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!el) { return {found: false}; }
		const r = el.getBoundingClientRect();
		return {found: true, disabled: !!el.disabled, x: r.x, y: r.y, width: r.width, height: r.height};
	})()`, frameDocJS, frameIndex, xpath)

	var prev *elementProbe
	for {
		var probe elementProbe
		if err := p.run(waitCtx, chromedp.Evaluate(script, &probe)); err != nil {
			if waitCtx.Err() != nil {
				return fmt.Errorf("%w: %s", browser.ErrReadinessTimeout, xpath)
			}
			return fmt.Errorf("probing %s: %w", xpath, err)
		}

		if probe.Found && !probe.Disabled && prev != nil &&
			probe.X == prev.X && probe.Y == prev.Y &&
			probe.Width == prev.Width && probe.Height == prev.Height {
			return nil
		}
		prev = &probe

		if err := p.pause(waitCtx); err != nil {
			return fmt.Errorf("%w: %s", browser.ErrReadinessTimeout, xpath)
		}
	}
}

// pause sleeps one poll interval, aborting early on context expiry.
func (p *Page) pause(ctx context.Context) error {
	every := p.cfg.ReadinessPollEvery
	if every <= 0 {
		every = 50 * time.Millisecond
	}
	select {
	case <-time.After(every):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
