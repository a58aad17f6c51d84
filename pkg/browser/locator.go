package browser

import (
	"fmt"

	"github.com/chromedp/chromedp"
)

// By selects how a locator's selector is interpreted.
type By string

const (
	ByCSS   By = "css"
	ByXPath By = "xpath"
	ByID    By = "id"
)

// Locator names one way of finding an element.
type Locator struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Selector string `json:"selector" yaml:"selector"`
	By       By     `json:"by,omitempty" yaml:"by,omitempty"`
}

// CSS returns a CSS selector locator.
func CSS(selector string) Locator { return Locator{Selector: selector, By: ByCSS} }

// XPath returns an XPath locator.
func XPath(selector string) Locator { return Locator{Selector: selector, By: ByXPath} }

// ID returns an element-ID locator.
func ID(id string) Locator { return Locator{Selector: id, By: ByID} }

// Named returns a copy with a human label used in reports.
func (l Locator) Named(name string) Locator {
	l.Name = name
	return l
}

func (l Locator) String() string {
	if l.Name != "" {
		return l.Name
	}
	by := l.By
	if by == "" {
		by = ByCSS
	}
	return fmt.Sprintf("%s=%s", by, l.Selector)
}

func (l Locator) query() chromedp.QueryOption {
	switch l.By {
	case ByXPath:
		return chromedp.BySearch
	case ByID:
		return chromedp.ByID
	default:
		return chromedp.ByQuery
	}
}
