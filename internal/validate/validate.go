// Package validate holds the field checks shared by the authorization and
// token services.
package validate

import (
	"net/url"
	"regexp"

	"github.com/tidwall/gjson"
)

var (
	scopeToken = regexp.MustCompile(`^[\x21\x23-\x5B\x5D-\x7E]+$`)
	scopeList  = regexp.MustCompile(`^[\x21\x23-\x5B\x5D-\x7E]+( [\x21\x23-\x5B\x5D-\x7E]+)*$`)
	printable  = regexp.MustCompile(`^[\x20-\x7E]*$`)
)

// URL reports whether s is an absolute URL with a scheme and a host.
func URL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// ScopeToken reports whether s is a single scope item.
func ScopeToken(s string) bool { return scopeToken.MatchString(s) }

// Scope reports whether s is a non-empty, single-space separated scope list.
func Scope(s string) bool { return scopeList.MatchString(s) }

// Printable reports whether s is printable ASCII, space included. The empty
// string is printable.
func Printable(s string) bool { return printable.MatchString(s) }

// JSONObject parses body as a JSON object nested at most maxDepth containers
// deep (the object itself counts as one).
func JSONObject(body []byte, maxDepth int) (gjson.Result, bool) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() || depth(res) > maxDepth {
		return gjson.Result{}, false
	}
	return res, true
}

func depth(r gjson.Result) int {
	if !r.IsObject() && !r.IsArray() {
		return 0
	}
	deepest := 0
	r.ForEach(func(_, v gjson.Result) bool {
		if d := depth(v); d > deepest {
			deepest = d
		}
		return true
	})
	return deepest + 1
}
