package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/jzx17/storecheck/internal/logging"
	"github.com/jzx17/storecheck/pkg/recorder"
	"github.com/jzx17/storecheck/pkg/retry"
)

// Session drives one browser tab and records every action as a step.
// Like the recorder it writes to, a Session belongs to a single run.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	rec                 *recorder.Recorder
	driver              Driver
	baseURL             string
	artifactsDir        string
	screenshotOnFailure bool
	timeout             time.Duration
	logger              *log.Logger

	shots int

	consoleMu     sync.Mutex
	consoleErrors []string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithBaseURL resolves relative Navigate targets against url.
func WithBaseURL(url string) SessionOption {
	return func(s *Session) { s.baseURL = strings.TrimRight(url, "/") }
}

// WithArtifactsDir sets where screenshots are written.
func WithArtifactsDir(dir string) SessionOption {
	return func(s *Session) { s.artifactsDir = dir }
}

// WithScreenshotOnFailure captures a screenshot whenever a step fails.
func WithScreenshotOnFailure(enabled bool) SessionOption {
	return func(s *Session) { s.screenshotOnFailure = enabled }
}

// WithLocatorTimeout bounds the wait for each locator.
func WithLocatorTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// WithDriver replaces the chromedp driver.
func WithDriver(d Driver) SessionOption {
	return func(s *Session) { s.driver = d }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *log.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession opens a browser tab under parent, usually the context returned by
// NewAllocator. Close releases it.
func NewSession(parent context.Context, rec *recorder.Recorder, opts ...SessionOption) *Session {
	s := &Session{
		rec:          rec,
		artifactsDir: "artifacts",
		timeout:      DefaultOptions().Timeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.For("browser")
	}

	if s.driver == nil {
		s.driver = chromeDriver{}
		s.ctx, s.cancel = chromedp.NewContext(parent, chromedp.WithLogf(s.logger.Debugf))
		chromedp.ListenTarget(s.ctx, s.onEvent)
	} else {
		s.ctx, s.cancel = context.WithCancel(parent)
	}
	return s
}

func (s *Session) onEvent(ev any) {
	var msg string
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		if e.Type != runtime.APITypeError {
			return
		}
		var args []string
		for _, arg := range e.Args {
			if arg.Value != nil {
				args = append(args, string(arg.Value))
			}
		}
		msg = strings.Join(args, " ")
	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return
		}
		msg = e.ExceptionDetails.Text
	default:
		return
	}

	s.consoleMu.Lock()
	s.consoleErrors = append(s.consoleErrors, msg)
	s.consoleMu.Unlock()
}

// ConsoleErrors returns the browser console errors seen so far.
func (s *Session) ConsoleErrors() []string {
	s.consoleMu.Lock()
	defer s.consoleMu.Unlock()
	return append([]string(nil), s.consoleErrors...)
}

// Close records the console error count and closes the tab.
func (s *Session) Close() {
	s.rec.RecordMetric("console_errors", float64(len(s.ConsoleErrors())))
	s.cancel()
}

// Navigate opens url, relative to the base URL when it starts with "/".
func (s *Session) Navigate(url string) error {
	target := url
	if strings.HasPrefix(url, "/") && s.baseURL != "" {
		target = s.baseURL + url
	}
	return s.step("navigate", target, func(ctx context.Context) (any, error) {
		return map[string]string{"url": target}, s.driver.Navigate(ctx, target)
	})
}

// Click clicks the first locator that resolves.
func (s *Session) Click(locators ...Locator) error {
	_, err := s.withFallback("click", locators, func(ctx context.Context, l Locator) (string, error) {
		return "", s.driver.Click(ctx, l)
	})
	return err
}

// Fill replaces the value of the first locator that resolves.
func (s *Session) Fill(text string, locators ...Locator) error {
	_, err := s.withFallback("fill", locators, func(ctx context.Context, l Locator) (string, error) {
		return "", s.driver.Fill(ctx, l, text)
	})
	return err
}

// Text returns the text of the first locator that resolves.
func (s *Session) Text(locators ...Locator) (string, error) {
	return s.withFallback("text", locators, func(ctx context.Context, l Locator) (string, error) {
		return s.driver.Text(ctx, l)
	})
}

// WaitVisible waits until one of the locators is visible.
func (s *Session) WaitVisible(locators ...Locator) error {
	_, err := s.withFallback("wait", locators, func(ctx context.Context, l Locator) (string, error) {
		return "", s.driver.WaitVisible(ctx, l)
	})
	return err
}

// Screenshot captures the page, stores it as a run artifact and returns its path.
func (s *Session) Screenshot(label string) (string, error) {
	var path string
	err := s.step("screenshot", label, func(ctx context.Context) (any, error) {
		var err error
		path, err = s.capture(ctx, label)
		return map[string]string{"path": path}, err
	})
	return path, err
}

func (s *Session) withFallback(action string, locators []Locator, fn func(context.Context, Locator) (string, error)) (string, error) {
	names := make([]string, len(locators))
	for i, l := range locators {
		names[i] = l.String()
	}

	var out string
	err := s.step(action, strings.Join(names, " | "), func(ctx context.Context) (any, error) {
		candidates := make([]retry.Candidate[locatorResult], len(locators))
		for i, l := range locators {
			candidates[i] = retry.Candidate[locatorResult]{
				Name: names[i],
				Fn: func(ctx context.Context) (locatorResult, error) {
					ctx, cancel := context.WithTimeout(ctx, s.timeout)
					defer cancel()
					v, err := fn(ctx, l)
					return locatorResult{locator: names[i], value: v}, err
				},
			}
		}

		res, err := retry.FirstOf(ctx, candidates...)
		if err != nil {
			return nil, err
		}
		out = res.value
		return map[string]string{"locator": res.locator}, nil
	})
	return out, err
}

type locatorResult struct {
	locator string
	value   string
}

func (s *Session) step(action, description string, fn func(context.Context) (any, error)) error {
	ordinal := s.rec.StartStep(action, description)
	data, err := fn(s.ctx)
	if err != nil {
		if s.screenshotOnFailure && action != "screenshot" {
			if _, shotErr := s.capture(s.ctx, fmt.Sprintf("step-%d-failure", ordinal)); shotErr != nil {
				s.logger.Warn("failure screenshot failed", "step", ordinal, "err", shotErr)
			}
		}
		s.rec.FailStep(ordinal, fmt.Errorf("%s %s: %w", action, description, err))
		return err
	}
	s.rec.CompleteStep(ordinal, data)
	return nil
}

func (s *Session) capture(ctx context.Context, label string) (string, error) {
	buf, err := s.driver.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}

	dir := filepath.Join(s.artifactsDir, recorder.SanitizeName(s.rec.ID()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	s.shots++
	path := filepath.Join(dir, fmt.Sprintf("%02d_%s.png", s.shots, recorder.SanitizeName(label)))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}

	s.rec.AddArtifact(path)
	s.logger.Debug("screenshot saved", "path", path)
	return path, nil
}
