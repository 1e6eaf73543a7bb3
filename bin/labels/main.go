package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"label-printer/internal/capture"
	"label-printer/internal/controller"
	"label-printer/internal/delivery"
	"label-printer/internal/interact"
	"label-printer/internal/pipeline"
	"label-printer/internal/printserver"
	"label-printer/internal/session"
	"label-printer/internal/settings"
	"label-printer/internal/storage"
	"label-printer/internal/telemetry"
)

const serviceName = "labels"

type headers []string

func (h *headers) String() string {
	return strings.Join(*h, ", ")
}

func (h *headers) Set(value string) error {
	*h = append(*h, value)
	return nil
}

func (h headers) Map() map[string]string {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string]string, len(h))
	for _, header := range h {
		key, value, ok := strings.Cut(header, ":")
		if !ok {
			continue
		}
		m[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return m
}

func envOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}

// pageURL accepts a URL or a path to a local HTML file.
func pageURL(target string) (string, error) {
	if u, err := url.Parse(target); err == nil {
		switch u.Scheme {
		case "http", "https", "file":
			return target, nil
		}
	}

	path, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", target, err)
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

type options struct {
	engine                    string
	selector                  string
	pixelRatio                float64
	concurrency               int
	delay                     time.Duration
	navigationTimeout         time.Duration
	chromeDevtoolsProtocolURL string
	chromePath                string
	autoDownload              bool
	noSandbox                 bool
	headers                   headers

	output string

	printServerAddress string
	statusPath         string
	loginPath          string
	queuePath          string
	settingsFile       string
	ephemeral          bool
	username           string
	password           string

	telemetry telemetry.Config
}

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional
	_ = godotenv.Load()

	var o options
	flag.StringVar(&o.engine, "engine", envOrDefaultValue("ENGINE", "playwright"), "Rendering engine (playwright or chromedp)")
	flag.StringVar(&o.selector, "selector", envOrDefaultValue("LABEL_SELECTOR", capture.DefaultSelector), "CSS selector matching label elements")
	flag.Float64Var(&o.pixelRatio, "pixel-ratio", envOrDefaultValue("PIXEL_RATIO", 1.0), "Device pixel ratio used for rasterization")
	flag.IntVar(&o.concurrency, "concurrency", envOrDefaultValue("CONCURRENCY", 1), "Number of labels rasterized at once")
	flag.DurationVar(&o.delay, "delay", envOrDefaultValue("DELAY", 500*time.Millisecond), "Delay after the page has loaded")
	flag.DurationVar(&o.navigationTimeout, "navigation-timeout", envOrDefaultValue("NAVIGATION_TIMEOUT", 30*time.Second), "Timeout for loading the page")
	flag.StringVar(&o.chromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", envOrDefaultValue("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	flag.StringVar(&o.chromePath, "chrome-path", envOrDefaultValue("CHROME_PATH", ""), "Path to the Chrome executable")
	flag.BoolVar(&o.autoDownload, "auto-download", envOrDefaultValue("AUTO_DOWNLOAD", false), "Download Chromium when no browser is installed (chromedp engine)")
	flag.BoolVar(&o.noSandbox, "no-sandbox", envOrDefaultValue("NO_SANDBOX", false), "Disable the Chrome sandbox (chromedp engine)")
	flag.Var(&o.headers, "H", "Add HTTP header sent when loading the page (can be used multiple times)")
	flag.StringVar(&o.output, "output", envOrDefaultValue("OUTPUT", "."), "Download target: a directory or s3://bucket/prefix")
	flag.StringVar(&o.printServerAddress, "print-server-address", envOrDefaultValue("PRINT_SERVER_ADDRESS", ""), "Print server address, saved to the settings file")
	flag.StringVar(&o.statusPath, "status-path", envOrDefaultValue("STATUS_PATH", printserver.DefaultStatusPath), "Session status endpoint path")
	flag.StringVar(&o.loginPath, "login-path", envOrDefaultValue("LOGIN_PATH", printserver.DefaultLoginPath), "Login endpoint path")
	flag.StringVar(&o.queuePath, "queue-path", envOrDefaultValue("QUEUE_PATH", printserver.DefaultQueuePath), "Print queue endpoint path")
	flag.StringVar(&o.settingsFile, "settings-file", envOrDefaultValue("SETTINGS_FILE", ""), "Settings file (defaults to the user config directory)")
	flag.BoolVar(&o.ephemeral, "ephemeral", envOrDefaultValue("EPHEMERAL", false), "Keep settings in memory only")
	flag.StringVar(&o.telemetry.LogLevel, "log-level", envOrDefaultValue("GO_LOG", ""), "Log level (debug, info, warn, error)")
	flag.StringVar(&o.telemetry.LogFile, "log-file", envOrDefaultValue("LOG_FILE", ""), "Write logs to a rotating file instead of stderr")
	flag.BoolVar(&o.telemetry.Debug, "debug", envOrDefaultValue("DEBUG", false), "Human readable logs")
	flag.StringVar(&o.telemetry.PushgatewayURL, "pushgateway-url", envOrDefaultValue("PUSHGATEWAY_URL", ""), "Push metrics to this Prometheus pushgateway on exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <download|print|interactive> <url-or-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Credentials are only read from the environment so they never show up in the process list.
	o.username = os.Getenv("PRINT_USERNAME")
	o.password = os.Getenv("PRINT_PASSWORD")
	o.telemetry.ServiceName = serviceName
	o.telemetry.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		return 2
	}
	mode, target := args[0], args[1]
	switch mode {
	case "download", "print", "interactive":
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", mode)
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, o.telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up telemetry: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shut down telemetry: %v\n", err)
		}
	}()
	logger := tel.Logger

	if err := execute(ctx, logger, o, mode, target); err != nil {
		logger.Error("labels failed", "mode", mode, "error", err)
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}

func newBrowser(ctx context.Context, o options) (capture.Browser, error) {
	switch o.engine {
	case "playwright":
		config := capture.DefaultPlaywrightConfig()
		config.Selector = o.selector
		config.PixelRatio = o.pixelRatio
		config.Delay = o.delay
		config.Timeout = o.navigationTimeout
		config.ExecutablePath = o.chromePath
		config.ChromeDevtoolsProtocolURL = o.chromeDevtoolsProtocolURL
		if display := os.Getenv("DISPLAY"); display != "" {
			config.Headless = false
		}
		return capture.NewPlaywrightBrowser(ctx, config)
	case "chromedp":
		config := capture.DefaultChromedpConfig()
		config.Selector = o.selector
		config.PixelRatio = o.pixelRatio
		config.Delay = o.delay
		config.Timeout = o.navigationTimeout
		config.ExecutablePath = o.chromePath
		config.AutoDownload = o.autoDownload
		config.NoSandbox = o.noSandbox
		config.ChromeDevtoolsProtocolURL = o.chromeDevtoolsProtocolURL
		return capture.NewChromedpBrowser(ctx, config)
	}
	return nil, fmt.Errorf("unknown engine %q", o.engine)
}

func newStore(ctx context.Context, o options) (settings.Store, error) {
	var store settings.Store
	if o.ephemeral {
		store = settings.NewMemoryStore(nil)
	} else {
		path := o.settingsFile
		if path == "" {
			defaultPath, err := settings.DefaultPath()
			if err != nil {
				return nil, err
			}
			path = defaultPath
		}
		store = settings.NewFileStore(path)
	}

	if o.printServerAddress != "" {
		if err := store.Set(ctx, settings.AddressKey, o.printServerAddress); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func execute(ctx context.Context, logger *slog.Logger, o options, mode, target string) error {
	u, err := pageURL(target)
	if err != nil {
		return err
	}

	browser, err := newBrowser(ctx, o)
	if err != nil {
		return err
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Warn("failed to close browser", "error", err)
		}
	}()

	page, err := browser.Open(ctx, u, capture.OpenOptions{Headers: o.headers.Map()})
	if err != nil {
		return err
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn("failed to close page", "error", err)
		}
	}()

	title, err := page.Title(ctx)
	if err != nil {
		return err
	}
	if !capture.IsLabelsPage(title) {
		return fmt.Errorf("%s (title %q): %w", u, title, capture.ErrNotLabelsPage)
	}
	logger.Info("labels page loaded", "url", u, "title", title, "engine", o.engine)

	capturer, err := pipeline.New(capture.NewCollector(page, o.concurrency))
	if err != nil {
		return err
	}

	s, err := storage.New(ctx, o.output)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}

	store, err := newStore(ctx, o)
	if err != nil {
		return err
	}

	client, err := printserver.NewClient(printserver.Config{
		StatusPath: o.statusPath,
		LoginPath:  o.loginPath,
		QueuePath:  o.queuePath,
	})
	if err != nil {
		return err
	}

	terminal := interact.NewTerminal(os.Stdin, os.Stdout)
	interactor := interact.NewPreset(terminal, map[string]string{
		session.PromptUsername: o.username,
		session.PromptPassword: o.password,
	})

	c, err := controller.New(controller.Options{
		Capturer:   capturer,
		Local:      delivery.NewLocal(s, logger),
		Remote:     delivery.NewRemote(client, logger),
		Session:    session.NewManager(store, interactor, client, logger),
		Interactor: interactor,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	switch mode {
	case "download":
		return c.Download(ctx)
	case "print":
		return c.Print(ctx)
	}
	return interactive(ctx, c, terminal)
}

const help = "[print] [download] [hide]  (quit to exit)"

// interactive runs the control strip until the input ends or the user quits.
// Each trigger runs on its own goroutine so the strip stays responsive.
func interactive(ctx context.Context, c *controller.Controller, terminal *interact.Terminal) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	terminal.Notify(interact.Notice{Message: help})
	for {
		line, ok, err := terminal.ReadCommand(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		var operation func(context.Context) error
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			continue
		case "print", "p":
			operation = c.Print
		case "download", "d":
			operation = c.Download
		case "hide":
			c.Hide()
			continue
		case "quit", "exit", "q":
			return nil
		default:
			if !c.Controls.Hidden.Load() {
				terminal.Notify(interact.Notice{Message: help})
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			// Outcomes are reported by the controller.
			if err := operation(ctx); errors.Is(err, controller.ErrBusy) {
				terminal.Notify(interact.Notice{Message: "still working on the previous request"})
			}
		}()
	}
}
