package netstate

import (
	"hash/fnv"
	"strconv"

	"github.com/meshircd/core/internal/id"
)

// fnv1aDigits returns the 32-bit FNV-1a hash of s, rendered as decimal
// digits and truncated to maxLen. Used to deterministically rename the
// losing side of a nickname or channel-name collision: every node
// computes the same rename for the same user id without any further
// communication (spec.md §4.3 "Collision resolution for nicknames").
func fnv1aDigits(s string, maxLen int) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	digits := strconv.FormatUint(uint64(h.Sum32()), 10)
	if len(digits) > maxLen {
		digits = digits[:maxLen]
	}
	return digits
}

// collisionNickname computes the deterministic fallback nickname for a
// user who lost a nickname collision.
func collisionNickname(u id.UserID) id.Nickname {
	// Nicknames are capped at 9 characters; leave room for nothing else,
	// the hash digits are used in full up to that length.
	digits := fnv1aDigits(u.String(), 9)
	n, err := id.NewNickname(digits)
	if err != nil {
		// digits are always valid nickname characters and never start
		// with '-', but a leading '0'-'9' is itself disallowed as a
		// first character; prefix with a letter to guarantee validity.
		prefixed := "z" + digits
		if len(prefixed) > 9 {
			prefixed = prefixed[:9]
		}
		n, _ = id.NewNickname(prefixed)
	}
	return n
}

// collisionChannelName computes the deterministic fallback channel name
// for a channel that lost a name collision.
func collisionChannelName(c id.ChannelID) id.ChannelName {
	digits := fnv1aDigits(c.String(), 20)
	name, _ := id.NewChannelName("#" + digits)
	return name
}

// winsCollision reports whether candidate wins a same-name race against
// incumbent, using the (timestamp ascending, event id ascending) rule:
// lower timestamp wins; ties are broken by the lower event id.
func winsCollision(candidateAt int64, candidateEvent id.EventID, incumbentAt int64, incumbentEvent id.EventID) bool {
	if candidateAt != incumbentAt {
		return candidateAt < incumbentAt
	}
	return candidateEvent.Less(incumbentEvent)
}
