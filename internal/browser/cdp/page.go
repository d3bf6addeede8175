// internal/browser/cdp/page.go

// Package cdp drives a real Chrome instance over the DevTools protocol and
// implements the page and snapshot contracts the engine consumes.
package cdp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

// extractTextLimit caps how much page text an extract step returns.
const extractTextLimit = 20000

// frameDocJS resolves the document of one frame by pre-order index, the same
// numbering the snapshot walker assigns. Only frames with an attached
// same-process document are counted, in both places, so index N here names
// the document whose elements were encoded "N-<backendNodeId>". Returns null
// when the index does not resolve.
const frameDocJS = `function(index) {
	if (index === 0) { return document; }
	let n = 0;
	const walk = (doc) => {
		let found = null;
		const hosts = doc.querySelectorAll('iframe,frame');
		for (let i = 0; i < hosts.length && !found; i++) {
			let child = null;
			try { child = hosts[i].contentDocument; } catch (e) { child = null; }
			if (!child) { continue; }
			n++;
			if (n === index) { return child; }
			found = walk(child);
		}
		return found;
	};
	return walk(document);
}`

// frameDocumentsJS returns the outer HTML of every reachable frame document
// in the same pre-order, main frame first.
const frameDocumentsJS = `(() => {
	const out = [document.documentElement ? document.documentElement.outerHTML : ''];
	const walk = (doc) => {
		const hosts = doc.querySelectorAll('iframe,frame');
		for (let i = 0; i < hosts.length; i++) {
			let child = null;
			try { child = hosts[i].contentDocument; } catch (e) { child = null; }
			if (!child) { continue; }
			out.push(child.documentElement ? child.documentElement.outerHTML : '');
			walk(child);
		}
	};
	walk(document);
	return out;
})()`

// Page is one attached tab. Element operations carry a frame index plus an
// xpath local to that frame's document.
type Page struct {
	ctx      context.Context
	cancel   context.CancelFunc
	targetID string
	cfg      config.BrowserConfig
	logger   *zap.Logger
}

func newPage(ctx context.Context, cancel context.CancelFunc, targetID string, cfg config.BrowserConfig, logger *zap.Logger) *Page {
	return &Page{
		ctx:      ctx,
		cancel:   cancel,
		targetID: targetID,
		cfg:      cfg,
		logger:   logger.Named("page").With(zap.String("target_id", targetID)),
	}
}

func (p *Page) TargetID() string { return p.targetID }

// run executes chromedp actions against this tab, bounded by the caller's
// context as well as the tab's lifetime.
func (p *Page) run(ctx context.Context, acts ...chromedp.Action) error {
	opCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, acts...)
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return url, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))

	timeout := p.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %s: %w", url, timeout, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *Page) GoBack(ctx context.Context) error {
	if err := p.run(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("history back failed: %w", err)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	if err := p.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

// Perform executes one low-level method against the node at xpath inside
// frameIndex's document. The node is first checked for presence, then waited
// on until it is enabled and geometrically stable.
func (p *Page) Perform(ctx context.Context, frameIndex int, method, xpath string, args []interface{}) error {
	present, err := p.nodePresent(ctx, frameIndex, xpath)
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: %s in frame %d", browser.ErrElementNotFound, xpath, frameIndex)
	}

	if method != browser.MethodScroll {
		if err := p.waitElementReady(ctx, frameIndex, xpath); err != nil {
			return err
		}
	}

	if frameIndex == 0 {
		err = p.performMain(ctx, method, xpath, args)
	} else {
		err = p.performInFrame(ctx, frameIndex, method, xpath, args)
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s on %s", browser.ErrReadinessTimeout, method, xpath)
		}
		return fmt.Errorf("%s on %s: %w", method, xpath, err)
	}
	return nil
}

// performMain dispatches a method in the main document, where search-based
// selectors resolve and real input injection is available.
func (p *Page) performMain(ctx context.Context, method, xpath string, args []interface{}) error {
	value := firstStringArg(args)
	switch method {
	case browser.MethodClick:
		return p.run(ctx, chromedp.Tasks{
			chromedp.ScrollIntoView(xpath, chromedp.BySearch),
			chromedp.Click(xpath, chromedp.BySearch),
		})
	case browser.MethodFill:
		return p.run(ctx, chromedp.SetValue(xpath, value, chromedp.BySearch))
	case browser.MethodType:
		return p.run(ctx, chromedp.Tasks{
			chromedp.Click(xpath, chromedp.BySearch),
			chromedp.SendKeys(xpath, value, chromedp.BySearch),
		})
	case browser.MethodSelect:
		return p.run(ctx, chromedp.SetValue(xpath, value, chromedp.BySearch))
	case browser.MethodHover:
		return p.evalOnXPath(ctx, 0, xpath,
			`el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true})); el.dispatchEvent(new MouseEvent('mouseenter'))`)
	case browser.MethodSetChecked:
		return p.evalOnXPath(ctx, 0, xpath,
			fmt.Sprintf(`el.checked = %t; el.dispatchEvent(new Event('change', {bubbles: true}))`, firstBoolArg(args)))
	case browser.MethodScroll:
		return p.run(ctx, chromedp.ScrollIntoView(xpath, chromedp.BySearch))
	default:
		return fmt.Errorf("unknown element method %q", method)
	}
}

// performInFrame dispatches a method inside a child frame's document.
// Search-based selectors only resolve against the main document, so the
// action is synthesized in the frame itself. Typing degrades to a value set
// plus input events; per-key injection cannot cross the frame boundary.
func (p *Page) performInFrame(ctx context.Context, frameIndex int, method, xpath string, args []interface{}) error {
	value := jsString(firstStringArg(args))
	switch method {
	case browser.MethodClick:
		return p.evalOnXPath(ctx, frameIndex, xpath,
			`el.scrollIntoView({block: 'center'}); el.click()`)
	case browser.MethodFill, browser.MethodType:
		return p.evalOnXPath(ctx, frameIndex, xpath, fmt.Sprintf(
			`el.focus(); el.value = %s; el.dispatchEvent(new Event('input', {bubbles: true})); el.dispatchEvent(new Event('change', {bubbles: true}))`,
			value))
	case browser.MethodSelect:
		return p.evalOnXPath(ctx, frameIndex, xpath, fmt.Sprintf(
			`el.value = %s; el.dispatchEvent(new Event('change', {bubbles: true}))`, value))
	case browser.MethodHover:
		return p.evalOnXPath(ctx, frameIndex, xpath,
			`el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true})); el.dispatchEvent(new MouseEvent('mouseenter'))`)
	case browser.MethodSetChecked:
		return p.evalOnXPath(ctx, frameIndex, xpath,
			fmt.Sprintf(`el.checked = %t; el.dispatchEvent(new Event('change', {bubbles: true}))`, firstBoolArg(args)))
	case browser.MethodScroll:
		return p.evalOnXPath(ctx, frameIndex, xpath, `el.scrollIntoView({block: 'center'})`)
	default:
		return fmt.Errorf("unknown element method %q", method)
	}
}

// LocateByInstruction fetches every reachable frame document and matches the
// instruction against each in frame order, yielding a fresh element with a
// current frame index and xpath. The main frame wins ties by being first.
func (p *Page) LocateByInstruction(ctx context.Context, instruction string) (*schemas.ElementNode, error) {
	var docs []string
	if err := p.run(ctx, chromedp.Evaluate(frameDocumentsJS, &docs)); err != nil {
		return nil, fmt.Errorf("fetching documents for relocation: %w", err)
	}

	var firstErr error
	for i, outerHTML := range docs {
		if strings.TrimSpace(outerHTML) == "" {
			continue
		}
		node, err := dom.NewLocator(i).Locate(strings.NewReader(outerHTML), instruction)
		if err == nil {
			return node, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("no frame documents reachable")
	}
	return nil, fmt.Errorf("%w: %v", browser.ErrElementNotFound, firstErr)
}

// Extract returns the page's visible text for the model to answer the
// extraction instruction against on the next cycle.
func (p *Page) Extract(ctx context.Context, instruction string) (string, error) {
	p.logger.Debug("Extracting page text.", zap.String("instruction", instruction))

	var text string
	if err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &text)); err != nil {
		return "", fmt.Errorf("%w: %v", browser.ErrExtractionUnsupported, err)
	}
	return dom.TruncateUTF8(text, extractTextLimit), nil
}

// Close detaches the tab context.
func (p *Page) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}

// nodePresent reports whether the xpath resolves to at least one node in the
// frame's document, without waiting. Replay retries depend on this answering
// quickly.
func (p *Page) nodePresent(ctx context.Context, frameIndex int, xpath string) (bool, error) {
	var count int
	script := fmt.Sprintf(`(() => {
		const doc = (%s)(%d);
		if (!doc) { return 0; }
		return doc.evaluate(%q, doc, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotLength;
	})()`, frameDocJS, frameIndex, xpath)
	if err := p.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return false, fmt.Errorf("resolving %s in frame %d: %w", xpath, frameIndex, err)
	}
	return count > 0, nil
}

// evalOnXPath runs a script with `el` bound to the first node the xpath
// resolves to within the frame's document.
func (p *Page) evalOnXPath(ctx context.Context, frameIndex int, xpath, body string) error {
	script := fmt.Sprintf(`(() => {
		const doc = (%s)(%d);
		if (!doc) { return false; }
		const el = doc.evaluate(%q, doc, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!el) { return false; }
		%s;
		return true;
	})()`, frameDocJS, frameIndex, xpath, body)

	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s in frame %d", browser.ErrElementNotFound, xpath, frameIndex)
	}
	return nil
}

// jsString renders s as a script-safe string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func firstStringArg(args []interface{}) string {
	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			return s
		}
	}
	return ""
}

func firstBoolArg(args []interface{}) bool {
	if len(args) > 0 {
		if b, ok := args[0].(bool); ok {
			return b
		}
	}
	return false
}

// combineContext derives a context cancelled when either parent is.
func combineContext(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
