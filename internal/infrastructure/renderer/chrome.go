package renderer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"coursecert-backend/internal/application/certificates"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Landscape A4 at 96 CSS px per inch, exported at 2x for the raster image.
const (
	pageWidthPx    = 1123
	pageHeightPx   = 794
	pixelDensity   = 2
	paperWidthIn   = 8.27
	paperHeightIn  = 11.69
	screenshotQual = 100 // 100 = PNG
	closeTimeout   = 5 * time.Second
)

// Config bounds a ChromeEngine.
type Config struct {
	ExecPath      string
	MaxInstances  int
	LaunchTimeout time.Duration
	LoadTimeout   time.Duration
	SettleDelay   time.Duration
}

// ChromeEngine renders HTML with a dedicated headless Chrome process per call.
// At most MaxInstances processes run at once; callers queue on the semaphore.
type ChromeEngine struct {
	cfg  Config
	pool *semaphore.Weighted
}

func NewChromeEngine(cfg Config) *ChromeEngine {
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = 1
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 20 * time.Second
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 20 * time.Second
	}
	return &ChromeEngine{cfg: cfg, pool: semaphore.NewWeighted(int64(cfg.MaxInstances))}
}

// Render loads htmlPath and exports a PDF and a full-page PNG from the same page.
// The browser process is always torn down before returning, including on cancellation.
func (e *ChromeEngine) Render(ctx context.Context, htmlPath string) (*certificates.Rendered, error) {
	if err := e.pool.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for a renderer slot: %w", certificates.ErrRenderEngineUnavailable, err)
	}
	defer e.pool.Release(1)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("allow-file-access-from-files", true),
		chromedp.WindowSize(pageWidthPx, pageHeightPx),
	)
	if e.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(e.cfg.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	defer e.close(browserCtx)

	if err := e.launch(ctx, browserCtx, cancelBrowser); err != nil {
		return nil, err
	}

	var out certificates.Rendered
	loadCtx, cancelLoad := context.WithTimeout(browserCtx, e.cfg.LoadTimeout)
	defer cancelLoad()
	if err := chromedp.Run(loadCtx,
		chromedp.EmulateViewport(pageWidthPx, pageHeightPx, chromedp.EmulateScale(pixelDensity)),
		chromedp.Navigate(fileURL(htmlPath)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		e.settle(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithLandscape(true).
				WithPrintBackground(true).
				WithPaperWidth(paperWidthIn).
				WithPaperHeight(paperHeightIn).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("print pdf: %w", err)
			}
			out.PDF = buf
			return nil
		}),
		chromedp.FullScreenshot(&out.PNG, screenshotQual),
	); err != nil {
		return nil, fmt.Errorf("render %s: %w", filepath.Base(htmlPath), err)
	}
	return &out, nil
}

// launch starts the browser with a bounded startup time. The first Run on a
// chromedp context owns the process, so it is run on browserCtx itself and raced
// against a timer rather than given a timeout context.
func (e *ChromeEngine) launch(ctx, browserCtx context.Context, cancelBrowser context.CancelFunc) error {
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(browserCtx) }()

	timer := time.NewTimer(e.cfg.LaunchTimeout)
	defer timer.Stop()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("%w: %w", certificates.ErrRenderEngineUnavailable, err)
		}
		return nil
	case <-timer.C:
		cancelBrowser()
		return fmt.Errorf("%w: browser did not start within %s", certificates.ErrRenderEngineUnavailable, e.cfg.LaunchTimeout)
	case <-ctx.Done():
		cancelBrowser()
		return fmt.Errorf("%w: %w", certificates.ErrRenderEngineUnavailable, ctx.Err())
	}
}

// settle waits for web fonts to finish loading, then applies the fixed delay.
// The fonts promise is the explicit signal; the delay covers anything it misses.
func (e *ChromeEngine) settle() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var ready bool
		err := chromedp.Evaluate(`document.fonts.ready.then(() => true)`, &ready,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams { return p.WithAwaitPromise(true) },
		).Do(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("fonts.ready unavailable, relying on settle delay")
		}
		if e.cfg.SettleDelay <= 0 {
			return nil
		}
		return chromedp.Sleep(e.cfg.SettleDelay).Do(ctx)
	})
}

// close asks the browser to exit gracefully. Errors are logged so they never
// mask the render result.
func (e *ChromeEngine) close(browserCtx context.Context) {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(browserCtx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("renderer close failed")
		}
	case <-time.After(closeTimeout):
		log.Warn().Msg("renderer close timed out")
	}
}

func fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
