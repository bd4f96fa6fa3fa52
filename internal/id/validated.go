package id

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

const (
	lower = "abcdefghijklmnopqrstuvwxyz"
	upper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digit = "0123456789"
)

// InvalidValueError reports that a candidate string failed validation for
// one of the primitive types below; Kind names the primitive type.
type InvalidValueError struct {
	Kind  string
	Value string
}

func (e InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: %q", e.Kind, e.Value)
}

func checkAllowedChars(value string, allowed ...string) bool {
	joined := strings.Join(allowed, "")
	for _, c := range value {
		if !strings.ContainsRune(joined, c) {
			return false
		}
	}
	return true
}

// Nickname is a validated IRC nickname: at most 9 characters, drawn from
// letters, digits and a small set of punctuation, and not beginning with a
// digit or hyphen.
type Nickname string

func NewNickname(value string) (Nickname, error) {
	if len(value) == 0 || len(value) > 9 {
		return "", InvalidValueError{"Nickname", value}
	}
	if !checkAllowedChars(value, lower, upper, digit, "-_\\|[]{}^`") {
		return "", InvalidValueError{"Nickname", value}
	}
	first := value[0]
	if strings.ContainsRune(digit, rune(first)) || first == '-' {
		return "", InvalidValueError{"Nickname", value}
	}
	return Nickname(value), nil
}

func (n Nickname) String() string { return string(n) }

// CasefoldedNickname is the canonical lookup key for a Nickname: RFC 1459
// casemapping, lowercasing ASCII letters and folding {}|^ onto []\~.
type CasefoldedNickname string

func FoldNickname(n Nickname) CasefoldedNickname {
	return CasefoldedNickname(rfc1459Fold(string(n)))
}

func rfc1459Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z':
			b.WriteRune(c - 'A' + 'a')
		case c == '{':
			b.WriteRune('[')
		case c == '}':
			b.WriteRune(']')
		case c == '|':
			b.WriteRune('\\')
		case c == '^':
			b.WriteRune('~')
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Username is a validated ident string, at most 10 characters.
type Username string

func NewUsername(value string) (Username, error) {
	if len(value) == 0 || len(value) > 10 {
		return "", InvalidValueError{"Username", value}
	}
	return Username(value), nil
}

// NewUsernameCoerce builds a Username out of untrusted input (e.g. the
// ident supplied by a client that can't be rejected outright): strip
// characters that would otherwise make it invalid and truncate to length.
func NewUsernameCoerce(value string) Username {
	value = strings.ReplaceAll(value, "[", "")
	if len(value) > 10 {
		value = value[:10]
	}
	return Username(value)
}

func (u Username) String() string { return string(u) }

// Hostname is a validated client-visible hostname, checked against RFC
// 1035 domain name syntax.
type Hostname string

func NewHostname(value string) (Hostname, error) {
	if value == "" || !dns.IsDomainName(value) {
		return "", InvalidValueError{"Hostname", value}
	}
	return Hostname(value), nil
}

func (h Hostname) String() string { return string(h) }

// ChannelName is a validated channel name: must begin with '#'.
type ChannelName string

func NewChannelName(value string) (ChannelName, error) {
	if !strings.HasPrefix(value, "#") {
		return "", InvalidValueError{"ChannelName", value}
	}
	return ChannelName(value), nil
}

func (c ChannelName) String() string { return string(c) }

// CasefoldedChannelName is the canonical lookup key for a ChannelName.
type CasefoldedChannelName string

func FoldChannelName(c ChannelName) CasefoldedChannelName {
	return CasefoldedChannelName(rfc1459Fold(string(c)))
}

// ServerName is a validated server name, dot-separated like a hostname,
// restricted to a stricter character set and not starting with a digit or
// hyphen.
type ServerName string

func NewServerName(value string) (ServerName, error) {
	if len(value) == 0 {
		return "", InvalidValueError{"ServerName", value}
	}
	if !checkAllowedChars(value, lower, upper, digit, "_-.") {
		return "", InvalidValueError{"ServerName", value}
	}
	first := value[0]
	if strings.ContainsRune(digit, rune(first)) || first == '-' {
		return "", InvalidValueError{"ServerName", value}
	}
	return ServerName(value), nil
}

func (s ServerName) String() string { return string(s) }
