package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/storecheck/internal/logging"
	"github.com/jzx17/storecheck/internal/testutils"
	"github.com/jzx17/storecheck/pkg/recorder"
	"github.com/jzx17/storecheck/pkg/retry"
)

var errNotFound = errors.New("element not found")

// fakeDriver resolves locators by selector and logs every call.
type fakeDriver struct {
	mu        sync.Mutex
	elements  map[string]string
	calls     []string
	navErr    error
	shotErr   error
	filled    map[string]string
	lastNavTo string
}

func newFakeDriver(elements map[string]string) *fakeDriver {
	return &fakeDriver{elements: elements, filled: map[string]string{}}
}

func (d *fakeDriver) lookup(action string, l Locator) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, action+":"+l.Selector)
	text, ok := d.elements[l.Selector]
	if !ok {
		return "", errNotFound
	}
	return text, nil
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.lastNavTo = url
	return d.navErr
}

func (d *fakeDriver) Click(_ context.Context, l Locator) error {
	_, err := d.lookup("click", l)
	return err
}

func (d *fakeDriver) Fill(_ context.Context, l Locator, text string) error {
	if _, err := d.lookup("fill", l); err != nil {
		return err
	}
	d.filled[l.Selector] = text
	return nil
}

func (d *fakeDriver) Text(_ context.Context, l Locator) (string, error) {
	return d.lookup("text", l)
}

func (d *fakeDriver) WaitVisible(_ context.Context, l Locator) error {
	_, err := d.lookup("wait", l)
	return err
}

func (d *fakeDriver) Screenshot(context.Context) ([]byte, error) {
	if d.shotErr != nil {
		return nil, d.shotErr
	}
	return []byte("\x89PNG fake"), nil
}

func newTestSession(t *testing.T, driver Driver, opts ...SessionOption) (*Session, *recorder.Recorder) {
	t.Helper()
	rec := recorder.New(recorder.Metadata{ID: "run-1", Name: t.Name()},
		recorder.WithClock(testutils.NewInstantClock(t)))
	opts = append([]SessionOption{
		WithDriver(driver),
		WithArtifactsDir(t.TempDir()),
		WithSessionLogger(logging.Discard()),
	}, opts...)
	s := NewSession(context.Background(), rec, opts...)
	t.Cleanup(s.Close)
	return s, rec
}

func TestLocator_String(t *testing.T) {
	assert.Equal(t, "css=#buy", CSS("#buy").String())
	assert.Equal(t, "xpath=//button", XPath("//button").String())
	assert.Equal(t, "id=buy", ID("buy").String())
	assert.Equal(t, "css=.x", Locator{Selector: ".x"}.String())
	assert.Equal(t, "buy button", CSS("#buy").Named("buy button").String())
}

func TestAllocatorOptions(t *testing.T) {
	opts := allocatorOptions(Options{Headless: true, ExecPath: "/usr/bin/chromium"})
	assert.Len(t, opts, len(chromedp.DefaultExecAllocatorOptions)+6)

	opts = allocatorOptions(DefaultOptions())
	assert.Len(t, opts, len(chromedp.DefaultExecAllocatorOptions)+5)
}

func TestSession_NavigateResolvesBaseURL(t *testing.T) {
	driver := newFakeDriver(nil)
	s, rec := newTestSession(t, driver, WithBaseURL("https://shop.test/"))

	require.NoError(t, s.Navigate("/cart"))
	assert.Equal(t, "https://shop.test/cart", driver.lastNavTo)

	require.NoError(t, s.Navigate("https://other.test/"))
	assert.Equal(t, "https://other.test/", driver.lastNavTo)

	steps := rec.Snapshot().Steps
	require.Len(t, steps, 2)
	assert.Equal(t, "navigate", steps[0].Action)
	assert.Equal(t, "https://shop.test/cart", steps[0].Description)
	assert.Equal(t, recorder.StepCompleted, steps[0].Status)
}

func TestSession_FallbackLocators(t *testing.T) {
	driver := newFakeDriver(map[string]string{"#add-to-cart": "Add to cart"})
	s, rec := newTestSession(t, driver)

	err := s.Click(CSS("[data-test=add]").Named("test id"), CSS("#add-to-cart").Named("legacy id"))
	require.NoError(t, err)
	assert.Equal(t, []string{"click:[data-test=add]", "click:#add-to-cart"}, driver.calls)

	step := rec.Snapshot().Steps[0]
	assert.Equal(t, recorder.StepCompleted, step.Status)
	assert.Equal(t, "test id | legacy id", step.Description)
	assert.Equal(t, map[string]string{"locator": "legacy id"}, step.Data)
}

func TestSession_AllLocatorsFail(t *testing.T) {
	driver := newFakeDriver(nil)
	s, rec := newTestSession(t, driver)

	err := s.Click(CSS("#a"), XPath("//b"), ID("c"))
	require.Error(t, err)

	var fe *retry.FallbackError
	require.ErrorAs(t, err, &fe)
	require.Len(t, fe.Failures, 3)
	assert.Equal(t, "css=#a", fe.Failures[0].Name)
	assert.Equal(t, "xpath=//b", fe.Failures[1].Name)
	assert.Equal(t, "id=c", fe.Failures[2].Name)
	assert.ErrorIs(t, err, errNotFound)

	snap := rec.Snapshot()
	assert.Equal(t, recorder.StepFailed, snap.Steps[0].Status)
	assert.Contains(t, snap.Steps[0].Error, "css=#a")
	assert.Contains(t, snap.Steps[0].Error, "id=c")
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, 1, *snap.Errors[0].RelatedStep)
}

func TestSession_FillAndText(t *testing.T) {
	driver := newFakeDriver(map[string]string{"#email": "", "#total": "$89.99"})
	s, rec := newTestSession(t, driver)

	require.NoError(t, s.Fill("shopper@example.com", ID("email-v2"), CSS("#email")))
	assert.Equal(t, "shopper@example.com", driver.filled["#email"])

	text, err := s.Text(CSS("#total"))
	require.NoError(t, err)
	assert.Equal(t, "$89.99", text)

	require.NoError(t, s.WaitVisible(CSS("#total")))
	assert.Len(t, rec.Snapshot().Steps, 3)
}

func TestSession_Screenshot(t *testing.T) {
	driver := newFakeDriver(nil)
	s, rec := newTestSession(t, driver)

	path, err := s.Screenshot("cart page")
	require.NoError(t, err)
	assert.Equal(t, "01_cart_page.png", filepath.Base(path))
	assert.Equal(t, "run-1", filepath.Base(filepath.Dir(path)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake", string(data))

	snap := rec.Snapshot()
	assert.Equal(t, []string{path}, snap.Artifacts)
	assert.Equal(t, "screenshot", snap.Steps[0].Action)
}

func TestSession_ScreenshotOnFailure(t *testing.T) {
	driver := newFakeDriver(nil)
	s, rec := newTestSession(t, driver, WithScreenshotOnFailure(true))

	require.Error(t, s.Click(CSS("#missing")))

	snap := rec.Snapshot()
	require.Len(t, snap.Artifacts, 1)
	assert.Equal(t, "01_step-1-failure.png", filepath.Base(snap.Artifacts[0]))
	assert.Equal(t, recorder.StepFailed, snap.Steps[0].Status)
}

func TestSession_FailureScreenshotErrorIsContained(t *testing.T) {
	driver := newFakeDriver(nil)
	driver.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	driver.shotErr = errors.New("target closed")
	s, rec := newTestSession(t, driver, WithScreenshotOnFailure(true))

	err := s.Navigate("https://nowhere.test")
	assert.EqualError(t, err, "net::ERR_NAME_NOT_RESOLVED")
	assert.Empty(t, rec.Snapshot().Artifacts)
}

func TestSession_LocatorTimeout(t *testing.T) {
	s, rec := newTestSession(t, &blockingDriver{fakeDriver: newFakeDriver(map[string]string{})}, WithLocatorTimeout(20*time.Millisecond))

	err := s.WaitVisible(CSS("#never"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, recorder.StepFailed, rec.Snapshot().Steps[0].Status)
}

func TestSession_CloseRecordsConsoleErrors(t *testing.T) {
	rec := recorder.New(recorder.Metadata{Name: "console"}, recorder.WithClock(testutils.NewInstantClock(t)))
	s := NewSession(context.Background(), rec, WithDriver(newFakeDriver(nil)), WithSessionLogger(logging.Discard()))
	s.consoleErrors = []string{"Uncaught TypeError", "404 /favicon.ico"}

	s.Close()
	assert.Equal(t, 2.0, rec.Snapshot().Metrics["console_errors"])
}

// blockingDriver waits until the context ends.
type blockingDriver struct{ *fakeDriver }

func (*blockingDriver) WaitVisible(ctx context.Context, _ Locator) error {
	<-ctx.Done()
	return ctx.Err()
}
