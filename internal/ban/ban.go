// Package ban implements the network-wide ban repository: a compiled
// predicate engine matching connecting-user descriptors against
// nick!user@host-style glob patterns (spec.md §2, §4.3, testable property
// 5 and scenario S6).
package ban

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/meshircd/core/internal/id"
)

// Descriptor carries the fields of a (prospective) connection that a ban
// pattern is matched against.
type Descriptor struct {
	Nick     string
	User     string
	Host     string
	IP       string
	Realname string
}

// Entry is one network ban as tracked in network state.
type Entry struct {
	ID        id.NetworkBanID
	Pattern   string // raw nick!user@host-style glob, as configured
	Reason    string
	SetBy     string
	SetAt     int64
	ExpiresAt int64 // zero means no expiry
}

type compiledEntry struct {
	Entry
	nick, user, host *regexp.Regexp
}

// Repository holds every network ban and answers match queries.
type Repository struct {
	mu      sync.RWMutex
	entries map[id.NetworkBanID]*compiledEntry
	// byPattern indexes the normalized pattern string to the winning
	// entry's id, for the timestamp/creator duplicate-resolution rule.
	byPattern map[string]id.NetworkBanID
}

// NewRepository returns an empty ban repository.
func NewRepository() *Repository {
	return &Repository{
		entries:   make(map[id.NetworkBanID]*compiledEntry),
		byPattern: make(map[string]id.NetworkBanID),
	}
}

// globToRegexp compiles an IRC-style glob (case-insensitive, '*' and '?'
// wildcards, everything else literal) into an anchored regular
// expression.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// splitMask parses a nick!user@host glob, defaulting any missing part to
// "*".
func splitMask(pattern string) (nick, user, host string) {
	nick, rest, hasBang := strings.Cut(pattern, "!")
	if !hasBang {
		if u, h, hasAt := strings.Cut(pattern, "@"); hasAt {
			return "*", u, h
		}
		return "*", "*", pattern
	}
	user, host, hasAt := strings.Cut(rest, "@")
	if !hasAt {
		return nick, rest, "*"
	}
	return nick, user, host
}

func normalize(pattern string) string {
	n, u, h := splitMask(pattern)
	return strings.ToLower(n + "!" + u + "@" + h)
}

// Add compiles and inserts a ban. If a ban with an equivalent pattern
// already exists, the one with the earlier SetAt wins; ties are broken by
// comparing SetBy lexicographically, matching spec.md's "duplicates are
// resolved by timestamp then creator".
func (r *Repository) Add(e Entry) error {
	nick, user, host := splitMask(e.Pattern)
	nickRe, err := globToRegexp(nick)
	if err != nil {
		return fmt.Errorf("invalid ban pattern %q: %w", e.Pattern, err)
	}
	userRe, err := globToRegexp(user)
	if err != nil {
		return fmt.Errorf("invalid ban pattern %q: %w", e.Pattern, err)
	}
	hostRe, err := globToRegexp(host)
	if err != nil {
		return fmt.Errorf("invalid ban pattern %q: %w", e.Pattern, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(e.Pattern)
	if existingID, ok := r.byPattern[key]; ok {
		existing := r.entries[existingID]
		if !banLoses(e, existing.Entry) {
			return nil
		}
		delete(r.entries, existingID)
	}

	r.entries[e.ID] = &compiledEntry{Entry: e, nick: nickRe, user: userRe, host: hostRe}
	r.byPattern[key] = e.ID
	return nil
}

// banLoses reports whether candidate should replace incumbent under the
// (timestamp ascending, creator ascending) tie-break.
func banLoses(candidate, incumbent Entry) bool {
	if candidate.SetAt != incumbent.SetAt {
		return candidate.SetAt < incumbent.SetAt
	}
	return candidate.SetBy < incumbent.SetBy
}

// Remove deletes a ban by id. Removing an id that doesn't exist is a
// no-op.
func (r *Repository) Remove(id id.NetworkBanID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}
	delete(r.entries, id)
	if r.byPattern[normalize(e.Pattern)] == id {
		delete(r.byPattern, normalize(e.Pattern))
	}
}

// Matches returns every non-expired ban whose pattern matches the given
// descriptor, as of "now" (unix seconds).
func (r *Repository) Matches(d Descriptor, now int64) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for _, e := range r.entries {
		if e.ExpiresAt != 0 && e.ExpiresAt <= now {
			continue
		}
		if !e.nick.MatchString(d.Nick) || !e.user.MatchString(d.User) {
			continue
		}
		if e.host.MatchString(d.Host) || (d.IP != "" && e.host.MatchString(d.IP)) {
			out = append(out, e.Entry)
		}
	}
	return out
}

// Get returns a single ban by id.
func (r *Repository) Get(id id.NetworkBanID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// All returns every currently configured ban.
func (r *Repository) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Entry)
	}
	return out
}
