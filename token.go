package pagecache

import (
	"strconv"
	"strings"
)

const windowPrefix = "page"

// Token is a parsed page token: either a WindowToken or a CursorToken.
type Token interface {
	String() string
	isToken()
}

// WindowToken addresses a cached window slot.
type WindowToken int

// CursorToken is an opaque source cursor, served live.
type CursorToken string

func (t WindowToken) String() string { return windowPrefix + strconv.Itoa(int(t)) }
func (t CursorToken) String() string { return string(t) }

func (WindowToken) isToken() {}
func (CursorToken) isToken() {}

// ParseToken classifies a client token for a window of the given size.
//
// "" is page0. "page" followed by one or more decimal digits is a window
// token and must be below window. Everything else, including "page",
// "pageX" and "page-1", is a cursor for the source to judge.
func ParseToken(s string, window int) (Token, error) {
	if s == "" {
		return WindowToken(0), nil
	}
	digits, ok := strings.CutPrefix(s, windowPrefix)
	if !ok || digits == "" || !allDigits(digits) {
		return CursorToken(s), nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil, &InvalidPageTokenError{Token: s, Reason: "window index out of range", Err: err}
	}
	if n >= window {
		return nil, &InvalidPageTokenError{Token: s, Reason: "window index out of range"}
	}
	return WindowToken(n), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
