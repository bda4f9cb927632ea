package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"
)

// Randomized User-Agent pool for stealth.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
}

// Options configures a browser Agent.
type Options struct {
	Headless bool
	// SlowMo slows every browser operation by this many milliseconds.
	SlowMo float64
	// ScreenshotFn receives base64 PNG data after every state capture.
	ScreenshotFn func(b64 string)
}

// Agent drives a single browser page: navigation, field scanning, form
// filling and screenshot capture. One page at a time; all operations are
// strictly sequential so detection and filling see a consistent DOM.
type Agent struct {
	opts Options

	pw         *pw.Playwright
	browser    pw.Browser
	browserCtx pw.BrowserContext
	page       pw.Page
	started    bool

	mu       sync.Mutex
	lastScan []FieldDescriptor
}

func NewAgent(opts Options) *Agent {
	return &Agent{opts: opts}
}

// StartSession launches Chromium with stealth configuration: random
// user agent, desktop viewport, anti-automation flags and an init script
// that hides the webdriver flag.
func (a *Agent) StartSession(ctx context.Context) error {
	if a.started {
		log.Printf("⚠️ Session already started, skipping")
		return nil
	}

	instance, err := pw.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	a.pw = instance

	ua := userAgents[rand.Intn(len(userAgents))]

	browser, err := instance.Chromium.Launch(pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(a.opts.Headless),
		SlowMo:   pw.Float(a.opts.SlowMo),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-infobars",
			"--window-size=1920,1080",
		},
	})
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	a.browser = browser

	bctx, err := browser.NewContext(pw.BrowserNewContextOptions{
		UserAgent:  pw.String(ua),
		Viewport:   &pw.Size{Width: 1920, Height: 1080},
		Locale:     pw.String("en-US"),
		TimezoneId: pw.String("America/New_York"),
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": "en-US,en;q=0.9",
			"DNT":             "1",
		},
	})
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to create context: %w", err)
	}
	a.browserCtx = bctx

	if err := bctx.AddInitScript(pw.Script{Content: pw.String(stealthInitScript)}); err != nil {
		log.Printf("⚠️ Failed to add stealth script: %v", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to create page: %w", err)
	}
	a.page = page
	a.started = true
	log.Printf("✅ Browser session started (ua=%s...)", ua[:30])
	return nil
}

// Close tears the session down. Safe to call on a partially started agent.
func (a *Agent) Close() error {
	if a.page != nil {
		_ = a.page.Close()
		a.page = nil
	}
	if a.browserCtx != nil {
		_ = a.browserCtx.Close()
		a.browserCtx = nil
	}
	if a.browser != nil {
		_ = a.browser.Close()
		a.browser = nil
	}
	if a.pw != nil {
		_ = a.pw.Stop()
		a.pw = nil
	}
	a.started = false
	return nil
}

// Navigate loads a URL and waits for network idle, bounded at 30s.
// A non-OK response counts as a failed navigation.
func (a *Agent) Navigate(ctx context.Context, url string) error {
	if a.page == nil {
		return fmt.Errorf("session not started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.randomDelay(50, 150)

	log.Printf("📄 Navigating to: %s", url)
	resp, err := a.page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateNetworkidle,
		Timeout:   pw.Float(30000),
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if resp != nil && !resp.Ok() {
		return fmt.Errorf("navigation returned status %d", resp.Status())
	}

	_, _ = a.CaptureState(ctx)
	return nil
}

// ScanPage flattens the page (shadow roots included) into field descriptors.
// The result replaces the previous scan wholesale and becomes the resolver
// cache for the next FillForm. On error the returned list is empty; the
// caller decides how loudly to log.
func (a *Agent) ScanPage(ctx context.Context) ([]FieldDescriptor, error) {
	if a.page == nil {
		return nil, fmt.Errorf("session not started")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_ = a.page.WaitForLoadState(pw.PageWaitForLoadStateOptions{State: pw.LoadStateDomcontentloaded})
	a.randomDelay(200, 500) // let client-side frameworks settle

	raw, err := a.page.Evaluate(fieldScanScript)
	if err != nil {
		return nil, fmt.Errorf("page scan failed: %w", err)
	}

	fields, err := decodeScan(raw)
	if err != nil {
		return nil, fmt.Errorf("scan result decode failed: %w", err)
	}

	a.mu.Lock()
	a.lastScan = fields
	a.mu.Unlock()

	counts := map[string]int{}
	for _, f := range fields {
		counts[f.Type]++
	}
	log.Printf("✅ Found %d form fields: %v", len(fields), counts)
	return fields, nil
}

// LastScan returns the most recent extraction snapshot.
func (a *Agent) LastScan() []FieldDescriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]FieldDescriptor, len(a.lastScan))
	copy(out, a.lastScan)
	return out
}

// CaptureState takes a screenshot and pushes it to the screenshot callback.
func (a *Agent) CaptureState(ctx context.Context) (string, error) {
	if a.page == nil {
		return "", fmt.Errorf("session not started")
	}
	shot, err := a.page.Screenshot(pw.PageScreenshotOptions{})
	if err != nil {
		return "", fmt.Errorf("screenshot failed: %w", err)
	}
	b64 := base64.StdEncoding.EncodeToString(shot)
	if a.opts.ScreenshotFn != nil {
		a.opts.ScreenshotFn(b64)
	}
	return b64, nil
}

// ClickButton clicks a control by selector, or by visible text when the
// selector is empty.
func (a *Agent) ClickButton(ctx context.Context, selector, text string) error {
	if a.page == nil {
		return fmt.Errorf("session not started")
	}
	a.randomDelay(200, 400)

	var err error
	switch {
	case selector != "":
		err = a.page.Locator(selector).First().Click(pw.LocatorClickOptions{Timeout: pw.Float(5000)})
	case text != "":
		sel := fmt.Sprintf("button:has-text('%s'), input[type='submit'][value='%s']", text, text)
		err = a.page.Locator(sel).First().Click(pw.LocatorClickOptions{Timeout: pw.Float(5000)})
	default:
		return fmt.Errorf("must provide selector or text")
	}
	if err != nil {
		return fmt.Errorf("click failed: %w", err)
	}

	_, _ = a.CaptureState(ctx)
	return nil
}

var (
	scriptTagRe  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTagRe   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	svgTagRe     = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	base64ImgRe  = regexp.MustCompile(`data:image/[^"']+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// GetPageHTML returns the page markup, optionally stripped of scripts,
// styles, SVGs and inline images to keep the payload small.
func (a *Agent) GetPageHTML(clean bool) (string, error) {
	if a.page == nil {
		return "", fmt.Errorf("session not started")
	}
	html, err := a.page.Content()
	if err != nil {
		return "", err
	}
	if clean {
		html = scriptTagRe.ReplaceAllString(html, "")
		html = styleTagRe.ReplaceAllString(html, "")
		html = svgTagRe.ReplaceAllString(html, "")
		html = base64ImgRe.ReplaceAllString(html, "data:image/REDACTED")
		html = whitespaceRe.ReplaceAllString(html, " ")
	}
	return html, nil
}

func (a *Agent) randomDelay(minMs, maxMs int) {
	d := minMs + rand.Intn(maxMs-minMs+1)
	time.Sleep(time.Duration(d) * time.Millisecond)
}
