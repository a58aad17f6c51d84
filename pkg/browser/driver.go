package browser

import (
	"context"

	"github.com/chromedp/chromedp"
)

// Driver performs single browser actions. Session layers recording, fallback
// and screenshots on top of it.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, l Locator) error
	Fill(ctx context.Context, l Locator, text string) error
	Text(ctx context.Context, l Locator) (string, error)
	WaitVisible(ctx context.Context, l Locator) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// chromeDriver runs chromedp actions. The ctx passed to each call must derive
// from a chromedp context.
type chromeDriver struct{}

func (chromeDriver) Navigate(ctx context.Context, url string) error {
	return chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

func (chromeDriver) Click(ctx context.Context, l Locator) error {
	return chromedp.Run(ctx,
		chromedp.WaitVisible(l.Selector, l.query()),
		chromedp.Click(l.Selector, l.query()),
	)
}

func (chromeDriver) Fill(ctx context.Context, l Locator, text string) error {
	return chromedp.Run(ctx,
		chromedp.WaitVisible(l.Selector, l.query()),
		chromedp.Clear(l.Selector, l.query()),
		chromedp.SendKeys(l.Selector, text, l.query()),
	)
}

func (chromeDriver) Text(ctx context.Context, l Locator) (string, error) {
	var text string
	err := chromedp.Run(ctx,
		chromedp.WaitVisible(l.Selector, l.query()),
		chromedp.Text(l.Selector, &text, l.query()),
	)
	return text, err
}

func (chromeDriver) WaitVisible(ctx context.Context, l Locator) error {
	return chromedp.Run(ctx, chromedp.WaitVisible(l.Selector, l.query()))
}

func (chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}
