// Package router evaluates an ordered list of route rules against a request
// path and method, producing the destination, status, headers, and query
// arguments the dispatcher acts on.
package router

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Rule is a single route entry. Evaluation order is list order.
type Rule struct {
	Src      string            `json:"src"`
	Dest     string            `json:"dest,omitempty"`
	Methods  []string          `json:"methods,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Status   int               `json:"status,omitempty"`
	Continue bool              `json:"continue,omitempty"`
	Check    bool              `json:"check,omitempty"`
}

// Result is the outcome of walking the rule list.
type Result struct {
	Found   bool
	Dest    string
	Status  int
	Headers map[string]string
	URIArgs url.Values
}

// AssetProbe reports whether a built asset exists for a local path. Used by
// rules with check set, giving them fallback semantics.
type AssetProbe func(path string) bool

// Compile validates a rule's src as an anchored regular expression.
func Compile(src string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(src, "^") {
		src = "^" + src
	}
	if !strings.HasSuffix(src, "$") {
		src += "$"
	}

	return regexp.Compile(src)
}

// Resolve walks rules in order against reqPath. A matching rule without
// continue stops evaluation; continue rules merge their headers and keep
// walking. Named and numbered captures from src are substituted into dest
// and header values.
func Resolve(reqPath, method string, rules []Rule, probe AssetProbe) (*Result, error) {
	result := &Result{
		Headers: make(map[string]string),
		URIArgs: make(url.Values),
	}

	for i := range rules {
		rule := &rules[i]

		if !methodAllowed(rule.Methods, method) {
			continue
		}

		re, err := Compile(rule.Src)
		if err != nil {
			return nil, fmt.Errorf("route %d: invalid src %q: %w", i, rule.Src, err)
		}

		idx := re.FindStringSubmatchIndex(reqPath)
		if idx == nil {
			continue
		}

		dest := expand(re, reqPath, idx, rule.Dest)

		if rule.Check && dest != "" && strings.HasPrefix(dest, "/") && probe != nil {
			probePath := dest
			if q := strings.IndexByte(probePath, '?'); q >= 0 {
				probePath = probePath[:q]
			}
			if !probe(probePath) {
				continue
			}
		}

		result.Found = true

		for name, value := range rule.Headers {
			result.Headers[name] = expand(re, reqPath, idx, value)
		}

		if rule.Status != 0 {
			result.Status = rule.Status
		}

		if dest != "" {
			result.Dest, result.URIArgs = splitDest(dest)
		}

		if rule.Continue {
			continue
		}

		return result, nil
	}

	if !result.Found {
		result.Dest = reqPath
	}

	return result, nil
}

func methodAllowed(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}

	return false
}

// expand substitutes $1, ${1}, and $name references from the match into
// template. A template without references passes through unchanged.
func expand(re *regexp.Regexp, src string, matchIdx []int, template string) string {
	if template == "" || !strings.ContainsRune(template, '$') {
		return template
	}

	return string(re.ExpandString(nil, template, src, matchIdx))
}

// splitDest separates dest's query string into URIArgs so the caller may
// merge them into the final request URL.
func splitDest(dest string) (string, url.Values) {
	q := strings.IndexByte(dest, '?')
	if q < 0 {
		return dest, url.Values{}
	}

	args, err := url.ParseQuery(dest[q+1:])
	if err != nil {
		return dest[:q], url.Values{}
	}

	return dest[:q], args
}
