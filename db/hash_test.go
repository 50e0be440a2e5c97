package db

import (
	"errors"
	"strings"
	"syscall"
	"testing"
)

func TestSum(t *testing.T) {
	val := mkbuf("somevalue")
	h, err := Sum(AlgoSha256, val)
	tassert(t, err == nil, "%v", err)
	expect := "70a524688ced8e45d26776fd4dc56410725b566cd840c044546ab30c4b499342"
	tassert(t, expect == h.String(), "expected %q got %q", expect, h.String())

	h, err = Sum(AlgoBlake3, nil)
	tassert(t, err == nil, "%v", err)
	expect = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	tassert(t, expect == h.String(), "expected %q got %q", expect, h.String())

	_, err = Sum("foobar", val)
	tassert(t, errors.Is(err, syscall.ENOSYS), "expected ENOSYS, got %v", err)
}

func TestParseHash(t *testing.T) {
	s := "70a524688ced8e45d26776fd4dc56410725b566cd840c044546ab30c4b499342"
	h, err := ParseHash(s)
	tassert(t, err == nil, "%v", err)
	tassert(t, h.String() == s, "round trip gave %s", h)
	tassert(t, !h.IsZero(), "zero")

	bad := []string{
		"",
		s[:63],
		s + "0",
		strings.ToUpper(s),
		"g" + s[1:],
		"sha256/" + s,
	}
	for _, raw := range bad {
		_, err := ParseHash(raw)
		var herr *HashError
		tassert(t, errors.As(err, &herr), "%q: expected HashError, got %v", raw, err)
		tassert(t, herr.Raw == raw, "raw %q", herr.Raw)
	}
}
