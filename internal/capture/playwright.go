package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

type PlaywrightConfig struct {
	ViewportWidth  int
	ViewportHeight int
	PixelRatio     float64

	Selector string

	Timeout time.Duration
	Delay   time.Duration

	Headless                  bool
	ExecutablePath            string
	ChromeDevtoolsProtocolURL string
}

func DefaultPlaywrightConfig() PlaywrightConfig {
	return PlaywrightConfig{
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		PixelRatio:     1,
		Selector:       DefaultSelector,
		Timeout:        30 * time.Second,
		Delay:          500 * time.Millisecond,
		Headless:       true,
	}
}

type playwrightBrowser struct {
	config  PlaywrightConfig
	pw      *playwright.Playwright
	browser playwright.Browser
	// remote browsers are shared with other clients and must stay running.
	remote bool
}

// NewPlaywrightBrowser starts playwright and launches (or attaches to) a Chromium instance.
func NewPlaywrightBrowser(ctx context.Context, config PlaywrightConfig) (Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b := &playwrightBrowser{
		config: config,
		pw:     pw,
	}

	if config.ChromeDevtoolsProtocolURL == "" {
		options := playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(config.Headless),
		}
		if config.ExecutablePath != "" {
			options.ExecutablePath = playwright.String(config.ExecutablePath)
		}
		b.browser, err = pw.Chromium.Launch(options)
		if err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
	} else {
		b.browser, err = pw.Chromium.ConnectOverCDP(config.ChromeDevtoolsProtocolURL)
		if err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("failed to connect to browser via CDP at %s: %w", config.ChromeDevtoolsProtocolURL, err)
		}
		b.remote = true
	}

	return b, nil
}

func (b *playwrightBrowser) Open(ctx context.Context, url string, options OpenOptions) (Page, error) {
	browserContext, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  b.config.ViewportWidth,
			Height: b.config.ViewportHeight,
		},
		DeviceScaleFactor: playwright.Float(b.config.PixelRatio),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := browserContext.NewPage()
	if err != nil {
		_ = browserContext.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	p := &playwrightPage{
		config:  b.config,
		context: browserContext,
		page:    page,
		done:    make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = p.Close()
		case <-p.done:
		}
	}()

	if len(options.Headers) > 0 {
		if err := page.SetExtraHTTPHeaders(options.Headers); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to set HTTP headers: %w", err)
		}
	}

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(b.config.Timeout.Milliseconds())),
	}); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if b.config.Delay > 0 {
		select {
		case <-time.After(b.config.Delay):
		case <-ctx.Done():
			_ = p.Close()
			return nil, ctx.Err()
		}
	}

	return p, nil
}

func (b *playwrightBrowser) Close() error {
	if !b.remote {
		if err := b.browser.Close(); err != nil {
			_ = b.pw.Stop()
			return fmt.Errorf("failed to close browser: %w", err)
		}
	}
	if err := b.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

type playwrightPage struct {
	config  PlaywrightConfig
	context playwright.BrowserContext
	page    playwright.Page

	once sync.Once
	done chan struct{}
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title, err := p.page.Title()
	if err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

func (p *playwrightPage) Labels(ctx context.Context) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handles, err := p.page.QuerySelectorAll(p.config.Selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", p.config.Selector, err)
	}

	elements := make([]Element, 0, len(handles))
	for _, handle := range handles {
		elements = append(elements, &playwrightElement{handle: handle})
	}
	return elements, nil
}

func (p *playwrightPage) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		err = p.context.Close()
	})
	return err
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func (e *playwrightElement) Rasterize(ctx context.Context) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	data, err := e.handle.Screenshot(playwright.ElementHandleScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	if err != nil {
		return Blob{}, fmt.Errorf("failed to take element screenshot: %w", err)
	}
	return Blob{Data: data, ContentType: ContentTypePNG}, nil
}
