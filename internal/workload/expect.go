package workload

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

const maxCheckedBodyBytes = 1 << 20

// ExpectationError reports a successful HTTP response whose body did not
// satisfy the workload's expectations.
type ExpectationError struct {
	Check string
}

func (e *ExpectationError) Error() string {
	return "response expectation failed: " + e.Check
}

// expectations are checked against every 2xx/3xx response body. A zero value
// checks nothing.
type expectations struct {
	jsonPath  string
	jsonValue string
	hasValue  bool
	body      *regexp.Regexp
}

func parseExpectations(props map[string]string) (expectations, error) {
	var exp expectations
	if path := strings.TrimSpace(props["expect.json"]); path != "" {
		exp.jsonPath = normalizeJSONPath(path)
	}
	if value, ok := props["expect.json_value"]; ok {
		if exp.jsonPath == "" {
			return expectations{}, fmt.Errorf("property expect.json_value requires expect.json")
		}
		exp.jsonValue = value
		exp.hasValue = true
	}
	if pattern := props["expect.body"]; pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return expectations{}, fmt.Errorf("property expect.body: %w", err)
		}
		exp.body = re
	}
	return exp, nil
}

func (e expectations) empty() bool {
	return e.jsonPath == "" && e.body == nil
}

func (e expectations) check(body []byte) error {
	if e.jsonPath != "" {
		result := gjson.GetBytes(body, e.jsonPath)
		if !result.Exists() {
			return &ExpectationError{Check: fmt.Sprintf("json path %q not found", e.jsonPath)}
		}
		if e.hasValue && result.String() != e.jsonValue {
			return &ExpectationError{Check: fmt.Sprintf("json path %q = %q, want %q", e.jsonPath, result.String(), e.jsonValue)}
		}
	}
	if e.body != nil && !e.body.Match(body) {
		return &ExpectationError{Check: fmt.Sprintf("body does not match %q", e.body.String())}
	}
	return nil
}

// normalizeJSONPath accepts "$.a.b", "$" and plain gjson paths.
func normalizeJSONPath(path string) string {
	switch {
	case path == "$":
		return "@this"
	case strings.HasPrefix(path, "$."):
		return path[2:]
	default:
		return path
	}
}
