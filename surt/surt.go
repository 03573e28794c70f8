// Package surt implements the default canonicalizer contract: a
// deterministic, idempotent mapping from any URL to its Sort-friendly
// URI Reordering Transform (SURT) form.
//
// The core treats the output as opaque ordered bytes; callers outside
// this package must not depend on anything beyond Canonicalize's
// contract (determinism, idempotence, host/path boundary preservation).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package surt

import (
	"fmt"
	"net/url"
	"strings"
)

// Canonicalize maps rawURL to its SURT form, e.g.
// "http://www.example.org:80/path?b=2&a=1" -> "(org,example,www,)/path?a=1&b=2".
// Each reversed host label is followed by a comma, including the last
// one, so that a prefix like "(org,example,)" for the apex domain is a
// true string-prefix of every subdomain's urlkey, e.g.
// "(org,example,www,)/...".
func Canonicalize(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if strings.HasPrefix(trimmed, "(") {
		// already in SURT form: canonicalizing it again must be a no-op.
		return trimmed, nil
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("surt: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("surt: no host in %q", rawURL)
	}

	host := strings.ToLower(u.Hostname())
	host = stripDefaultPort(u)

	labels := strings.Split(host, ".")
	reverse(labels)

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	query := canonicalizeQuery(u.RawQuery)

	var b strings.Builder
	b.WriteByte('(')
	for _, label := range labels {
		b.WriteString(label)
		b.WriteByte(',')
	}
	b.WriteByte(')')
	b.WriteString(path)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String(), nil
}

func stripDefaultPort(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	switch {
	case port == "":
		return host
	case u.Scheme == "http" && port == "80":
		return host
	case u.Scheme == "https" && port == "443":
		return host
	default:
		return host + ":" + port
	}
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// canonicalizeQuery sorts query parameters by key so that semantically
// identical URLs with differently ordered query strings canonicalize to
// the same SURT, preserving Canonicalize's idempotence.
func canonicalizeQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	return values.Encode()
}
