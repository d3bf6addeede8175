// internal/browser/cdp/driver.go
package cdp

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/internal/browser"
	"github.com/xkilldash9x/pagepilot/internal/browser/tabs"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

// Driver owns the Chrome process, the root tab, and the tab stack tracking
// popups for the lifetime of a run.
type Driver struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	stack *tabs.Stack
}

func NewDriver(logger *zap.Logger, cfg config.BrowserConfig) *Driver {
	return &Driver{
		logger: logger.Named("cdp"),
		cfg:    cfg,
	}
}

// Start launches Chrome, attaches the root tab, and begins tracking targets
// opened or closed by page script.
func (d *Driver) Start(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if d.cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			d.logger.Debug(fmt.Sprintf(format, args...))
		}))

	// Force the browser process up before anything depends on it.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("launching browser: %w", err)
	}

	d.allocCancel = allocCancel
	d.browserCtx = browserCtx
	d.browserCancel = browserCancel

	chromeCtx := chromedp.FromContext(browserCtx)
	rootID := ""
	if chromeCtx != nil && chromeCtx.Target != nil {
		rootID = string(chromeCtx.Target.TargetID)
	}
	root := newPage(browserCtx, nil, rootID, d.cfg, d.logger)
	d.stack = tabs.New(d.logger, root)

	if err := chromedp.Run(browserCtx, target.SetDiscoverTargets(true)); err != nil {
		d.Stop()
		return fmt.Errorf("enabling target discovery: %w", err)
	}
	chromedp.ListenTarget(browserCtx, d.handleTargetEvent)

	d.logger.Info("Browser started.", zap.Bool("headless", d.cfg.Headless), zap.String("root_target", rootID))
	return nil
}

// handleTargetEvent keeps the tab stack in sync with pages opened and closed
// outside our own control (window.open, target=_blank, window.close).
func (d *Driver) handleTargetEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		info := e.TargetInfo
		if info.Type != "page" || info.OpenerID == "" {
			return
		}
		tabCtx, tabCancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(info.TargetID))
		page := newPage(tabCtx, tabCancel, string(info.TargetID), d.cfg, d.logger)
		if !d.stack.PageOpened(page, string(info.OpenerID)) {
			// Opened by a page that is no longer active; leave it alone.
			tabCancel()
			return
		}
		d.logger.Info("Popup became the active tab.",
			zap.String("target_id", string(info.TargetID)),
			zap.String("opener_id", string(info.OpenerID)),
			zap.String("url", info.URL))

	case *target.EventTargetDestroyed:
		d.stack.PageClosed(string(e.TargetID))
	}
}

// Pages yields the currently active tab at call time.
func (d *Driver) Pages() browser.PageSupplier {
	return d.stack.Supplier()
}

// Stack exposes the tab tracker.
func (d *Driver) Stack() *tabs.Stack {
	return d.stack
}

// Stop tears the whole browser down.
func (d *Driver) Stop() {
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.logger.Info("Browser stopped.")
}
