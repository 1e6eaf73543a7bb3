package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"
)

type ChromedpConfig struct {
	ViewportWidth  int
	ViewportHeight int
	PixelRatio     float64

	Selector string

	Timeout time.Duration
	Delay   time.Duration

	Headless                  bool
	NoSandbox                 bool
	ExecutablePath            string
	AutoDownload              bool
	ChromeDevtoolsProtocolURL string
}

func DefaultChromedpConfig() ChromedpConfig {
	return ChromedpConfig{
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		PixelRatio:     1,
		Selector:       DefaultSelector,
		Timeout:        30 * time.Second,
		Delay:          500 * time.Millisecond,
		Headless:       true,
	}
}

type chromedpBrowser struct {
	config        ChromedpConfig
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromedpBrowser starts Chrome through the DevTools protocol, or attaches
// to a running instance when a DevTools URL is configured.
func NewChromedpBrowser(ctx context.Context, config ChromedpConfig) (Browser, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if config.ChromeDevtoolsProtocolURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), config.ChromeDevtoolsProtocolURL)
	} else {
		execPath := config.ExecutablePath
		if execPath == "" && config.AutoDownload {
			path, err := resolveBrowser()
			if err != nil {
				return nil, err
			}
			execPath = path
		}

		allocOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("headless", config.Headless),
			chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight),
		)
		if execPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(execPath))
		}
		if config.NoSandbox {
			allocOpts = append(allocOpts, chromedp.Flag("no-sandbox", true))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so errors surface at creation time.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &chromedpBrowser{
		config:        config,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// resolveBrowser downloads a compatible Chromium binary unless one is already
// cached and returns the path to the executable.
func resolveBrowser() (string, error) {
	if path, ok := launcher.LookPath(); ok {
		return path, nil
	}
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("failed to download browser: %w", err)
	}
	return path, nil
}

func (b *chromedpBrowser) Open(ctx context.Context, url string, options OpenOptions) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)

	p := &chromedpPage{
		config:    b.config,
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
	}
	p.stop = context.AfterFunc(ctx, tabCancel)

	// Allocate the tab without a deadline; a timeout on the first Run would
	// tie the tab's lifetime to it.
	if err := chromedp.Run(tabCtx); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	actions := []chromedp.Action{
		emulation.SetDeviceMetricsOverride(int64(b.config.ViewportWidth), int64(b.config.ViewportHeight), b.config.PixelRatio, false),
	}
	if len(options.Headers) > 0 {
		headers := make(map[string]interface{}, len(options.Headers))
		for key, value := range options.Headers {
			headers[key] = value
		}
		actions = append(actions,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers(headers)),
		)
	}
	actions = append(actions,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)

	runCtx := tabCtx
	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(tabCtx, b.config.Timeout)
		defer cancel()
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
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

func (b *chromedpBrowser) Close() error {
	b.browserCancel()
	b.allocCancel()
	return nil
}

type chromedpPage struct {
	config    ChromedpConfig
	tabCtx    context.Context
	tabCancel context.CancelFunc
	stop      func() bool

	once sync.Once
}

// run executes actions on the tab, bounded by the caller's context.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

func (p *chromedpPage) Labels(ctx context.Context) ([]Element, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(p.config.Selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", p.config.Selector, err)
	}

	elements := make([]Element, 0, len(nodes))
	for _, node := range nodes {
		elements = append(elements, &chromedpElement{page: p, nodeID: node.NodeID})
	}
	return elements, nil
}

func (p *chromedpPage) Close() error {
	p.once.Do(func() {
		if p.stop != nil {
			p.stop()
		}
		p.tabCancel()
	})
	return nil
}

type chromedpElement struct {
	page   *chromedpPage
	nodeID cdp.NodeID
}

func (e *chromedpElement) Rasterize(ctx context.Context) (Blob, error) {
	var data []byte
	if err := e.page.run(ctx, chromedp.Screenshot([]cdp.NodeID{e.nodeID}, &data, chromedp.ByNodeID)); err != nil {
		return Blob{}, fmt.Errorf("failed to take element screenshot: %w", err)
	}
	return Blob{Data: data, ContentType: ContentTypePNG}, nil
}
