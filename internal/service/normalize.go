package service

import (
	"net"
	"net/url"
	"phishguard/internal/utils"
	"strings"
	"unicode"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// Normalize canonicalizes a bare hostname or a full URL into the hostname
// form used for every comparison: lower-case, no surrounding whitespace, no
// trailing dot, no leading "www." label, punycode labels decoded to Unicode.
// It never fails; input that does not parse is treated as a hostname as-is.
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(input string) string {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return ""
	}

	host, ok := hostFromURL(raw)
	if !ok {
		host = hostFromBare(raw)
	}

	// Stripping one piece can expose another ("www. a.com", "a.com ."),
	// so repeat until the host stops changing.
	for i := 0; i < maxNormalizePasses; i++ {
		next := cleanHost(host)
		if next == host {
			break
		}
		host = next
	}

	if _, ok := dns.IsDomainName(host); !ok && host != "" && net.ParseIP(host) == nil {
		utils.Log.Debug("normalized malformed domain", utils.Field("input", input), utils.Field("host", host))
	}
	return host
}

const maxNormalizePasses = 8

func cleanHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimRight(host, ".")
	host = decodePunycode(host)
	for strings.HasPrefix(host, "www.") {
		host = host[len("www."):]
	}
	return strings.TrimSpace(host)
}

func hostFromURL(raw string) (string, bool) {
	if !strings.Contains(raw, "://") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return u.Hostname(), true
}

// hostFromBare strips the pieces a hostname cannot contain: a scheme that
// failed to parse, path/query/fragment, userinfo and port.
func hostFromBare(raw string) string {
	if i := strings.Index(raw, "://"); i >= 0 && !strings.ContainsAny(raw[:i], "/?#") {
		raw = raw[i+3:]
	}
	if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		raw = raw[:i]
	}
	if at := strings.LastIndexByte(raw, '@'); at >= 0 {
		raw = raw[at+1:]
	}
	if strings.Contains(raw, ":") {
		if h, _, err := net.SplitHostPort(raw); err == nil {
			raw = h
		}
	}
	return strings.Trim(raw, "[]")
}

func decodePunycode(host string) string {
	if !strings.Contains(host, "xn--") {
		return host
	}
	decoded, err := idna.ToUnicode(host)
	if err != nil {
		return host
	}
	// A label may decode to characters a hostname cannot carry.
	if strings.ContainsAny(decoded, "/?#@:[]\\") || strings.IndexFunc(decoded, unicode.IsSpace) >= 0 {
		return host
	}
	return strings.ToLower(decoded)
}

// Candidates returns the lookup keys for host, from the full hostname out to
// the registrable suffix, never including the bare TLD:
// pay.example.co.uk -> pay.example.co.uk, example.co.uk, co.uk.
func Candidates(host string) []string {
	labels := dns.SplitDomainName(host)
	if len(labels) < 2 {
		return nil
	}
	out := make([]string, 0, len(labels)-1)
	for i := 0; i < len(labels)-1; i++ {
		out = append(out, strings.Join(labels[i:], "."))
	}
	return out
}
