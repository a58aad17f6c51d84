package apicheck

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/expr-lang/expr"
	json "github.com/goccy/go-json"
)

// Check is one declarative API check. Expect holds boolean expressions
// evaluated against the response, for example:
//
//	status == 200
//	body.items[0].sku == "SKU-1"
//	headers["Content-Type"] startsWith "application/json"
//	durationMs < 500
type Check struct {
	Name    string            `json:"name" yaml:"name"`
	Method  string            `json:"method" yaml:"method"`
	Path    string            `json:"path" yaml:"path"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Body is sent as-is when it is a string or []byte, otherwise JSON-encoded.
	Body   any      `json:"body,omitempty" yaml:"body,omitempty"`
	Expect []string `json:"expect,omitempty" yaml:"expect,omitempty"`
}

func (c Check) method() string {
	if c.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(c.Method)
}

func (c Check) label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.method() + " " + c.Path
}

// Response is what expectations see.
type Response struct {
	Status     int
	Headers    map[string]string
	Text       string
	DurationMs int64
}

// Env builds the expression environment. body is the decoded JSON document, or
// the raw text when the body is not JSON.
func (r Response) Env() map[string]any {
	var body any = r.Text
	if trimmed := strings.TrimSpace(r.Text); trimmed != "" {
		var doc any
		if err := json.Unmarshal([]byte(trimmed), &doc); err == nil {
			body = doc
		}
	}
	headers := r.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	return map[string]any{
		"status":     r.Status,
		"headers":    headers,
		"body":       body,
		"text":       r.Text,
		"durationMs": r.DurationMs,
	}
}

// Evaluate compiles and runs a boolean expression against env.
func Evaluate(expression string, env map[string]any) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return false, fmt.Errorf("empty expectation")
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile expectation %q: %w", expression, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval expectation %q: %w", expression, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("expectation %q did not return bool (got %T: %v)", expression, output, output)
	}
	return result, nil
}
