/*
Package browser drives Chrome through chromedp and records every action into a
run.

	allocCtx, cancel := browser.NewAllocator(ctx, browser.DefaultOptions())
	defer cancel()

	s := browser.NewSession(allocCtx, rec,
		browser.WithBaseURL("https://staging.example.com"),
		browser.WithScreenshotOnFailure(true))
	defer s.Close()

	s.Navigate("/products/SKU-1")
	s.Click(browser.CSS("[data-test=add-to-cart]"), browser.XPath("//button[.='Add to cart']"))

Actions that take several locators try them in order and fail only when none
resolves; the step error names every locator tried.
*/
package browser
