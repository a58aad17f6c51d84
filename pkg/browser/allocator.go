package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// Options configures the browser process.
type Options struct {
	Headless     bool
	WindowWidth  int
	WindowHeight int
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	// Timeout bounds every wait for a single locator.
	Timeout time.Duration
}

// DefaultOptions returns a headless 1920x1080 browser with a 10s locator timeout.
func DefaultOptions() Options {
	return Options{
		Headless:     true,
		WindowWidth:  1920,
		WindowHeight: 1080,
		Timeout:      10 * time.Second,
	}
}

// NewAllocator starts a Chrome allocator. Cancel it to shut the browser down.
func NewAllocator(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	return chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	width, height := opts.WindowWidth, opts.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(width, height),
	)
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	return out
}
