package pdf

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/R3E-Network/canvas/internal/config"
	"github.com/R3E-Network/canvas/internal/logging"
)

// RodRenderer prints HTML through a headless Chromium driven over the
// DevTools protocol. The browser is started on first use and shared.
type RodRenderer struct {
	cfg config.PDFConfig
	log *logging.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launched chromeProcess
	launch   func(config.PDFConfig) (string, chromeProcess, error)
}

// chromeProcess is a browser this renderer started; *launcher.Launcher
// satisfies it.
type chromeProcess interface {
	Kill()
	Cleanup()
}

func launchChrome(cfg config.PDFConfig) (string, chromeProcess, error) {
	l := launcher.New().Headless(true).NoSandbox(true)
	if cfg.ChromeBin != "" {
		l = l.Bin(cfg.ChromeBin)
	}
	url, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return "", nil, err
	}
	return url, l, nil
}

// NewRodRenderer returns a renderer that connects to cfg.ChromeURL when set
// and otherwise launches cfg.ChromeBin (or the default browser lookup).
func NewRodRenderer(cfg config.PDFConfig, log *logging.Logger) *RodRenderer {
	if log == nil {
		log = logging.NewDefault("pdf-renderer")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &RodRenderer{cfg: cfg, log: log, launch: launchChrome}
}

func (r *RodRenderer) Name() string { return "pdf-renderer" }

// Start is a no-op; the browser is connected lazily on the first render.
func (r *RodRenderer) Start(context.Context) error { return nil }

// Stop closes the browser and kills a process this renderer launched.
func (r *RodRenderer) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked()
}

// releaseLocked closes the browser, then kills the process this renderer
// launched and removes its user-data dir.
func (r *RodRenderer) releaseLocked() error {
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.launched != nil {
		r.launched.Kill()
		r.launched.Cleanup()
		r.launched = nil
	}
	return err
}

// Render implements Renderer.
func (r *RodRenderer) Render(ctx context.Context, html []byte) ([]byte, error) {
	browser, err := r.connect()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		r.reset()
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	out, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	return out, nil
}

func (r *RodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	controlURL := r.cfg.ChromeURL
	if controlURL == "" {
		url, proc, err := r.launch(r.cfg)
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
		r.launched = proc
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		_ = r.releaseLocked()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	r.browser = browser
	r.log.WithField("control_url", controlURL).Info("pdf renderer connected")
	return browser, nil
}

// reset drops a browser that stopped answering, along with any process it
// ran in, so the next render starts clean.
func (r *RodRenderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.releaseLocked(); err != nil {
		r.log.WithError(err).Warn("close unresponsive browser")
	}
}
