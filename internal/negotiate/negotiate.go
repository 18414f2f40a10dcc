// Package negotiate picks the response encoding for code verification
// replies from the client's Accept header.
package negotiate

import (
	"errors"
	"math"
	"strings"

	"github.com/munnerz/goautoneg"
)

const (
	MIMEJSON = "application/json"
	MIMEForm = "application/x-www-form-urlencoded"
)

// Encoding is one of the two reply encodings the verification endpoint speaks.
type Encoding int

const (
	JSON Encoding = iota + 1
	Form
)

func (e Encoding) ContentType() string {
	if e == Form {
		return MIMEForm
	}
	return MIMEJSON
}

// ErrNotAcceptable means the client accepts neither encoding.
var ErrNotAcceptable = errors.New("negotiate: no acceptable encoding")

// Quality returns the q-value accept assigns to mime. The exact type wins over
// type/*, which wins over */*. Unmatched types get 0; a range without a q
// parameter gets 1.
func Quality(mime, accept string) float64 {
	major, minor, _ := strings.Cut(mime, "/")
	ranges := goautoneg.ParseAccept(accept)

	for _, pass := range [][2]string{{major, minor}, {major, "*"}, {"*", "*"}} {
		for _, r := range ranges {
			if strings.EqualFold(r.Type, pass[0]) && strings.EqualFold(r.SubType, pass[1]) {
				// q-values carry at most three decimals
				return math.Round(float64(r.Q)*1000) / 1000
			}
		}
	}
	return 0
}

// Preferred chooses between JSON and form encoding. An empty header accepts
// anything. Ties go to JSON.
func Preferred(accept string) (Encoding, error) {
	if strings.TrimSpace(accept) == "" {
		accept = "*/*"
	}
	json := Quality(MIMEJSON, accept)
	form := Quality(MIMEForm, accept)
	switch {
	case json == 0 && form == 0:
		return 0, ErrNotAcceptable
	case json >= form:
		return JSON, nil
	default:
		return Form, nil
	}
}
