// Package rangeref converts document range identifiers into link-safe tokens and
// parses the note links that carry them.
package rangeref

import (
	"encoding/base64"
	"errors"
	"regexp"
	"unicode/utf8"
)

// FragmentKey introduces a token inside a link fragment.
const FragmentKey = "rangeref="

// ErrMalformedToken is returned when a token is not valid base64url or does not
// decode to UTF-8 text. Callers drop the reference instead of surfacing it.
var ErrMalformedToken = errors.New("malformed range token")

var tokenAlphabet = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

// Standard base64 with '+' and '/' remapped to '-' and '_' and padding removed
// is exactly the unpadded URL alphabet. Strict rejects non-canonical trailing
// bits so that re-encoding a decoded token reproduces it.
var tokenEncoding = base64.RawURLEncoding.Strict()

// Encode turns a range identifier into a token over [A-Za-z0-9_-].
func Encode(rng string) string {
	return tokenEncoding.EncodeToString([]byte(rng))
}

// Decode reverses Encode.
func Decode(token string) (string, error) {
	if !tokenAlphabet.MatchString(token) {
		return "", ErrMalformedToken
	}

	raw, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return "", ErrMalformedToken
	}
	if !utf8.Valid(raw) {
		return "", ErrMalformedToken
	}

	return string(raw), nil
}
