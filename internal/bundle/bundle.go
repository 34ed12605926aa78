// Package bundle groups the products of a multi-link message.
package bundle

import (
	"strings"

	"github.com/google/uuid"

	"DealsIngestor/internal/domain"
)

// namespace seeds group ids so a replayed message maps to the same group.
var namespace = uuid.MustParse("6f1c2a4e-8d3b-5b7a-9c10-2e4f6a8b0d12")

// Member places one product inside its message group.
type Member struct {
	GroupID  string
	Sequence int
	Total    int
}

// GroupID derives a stable UUIDv5 from the message key.
func GroupID(key domain.MessageKey) string {
	return uuid.NewSHA1(namespace, []byte(key.String())).String()
}

// Group assigns sequence numbers 1..n in URL order. Single-product messages
// get no group id.
func Group(key domain.MessageKey, n int) []Member {
	if n <= 0 {
		return nil
	}
	id := ""
	if n > 1 {
		id = GroupID(key)
	}
	members := make([]Member, n)
	for i := range members {
		members[i] = Member{GroupID: id, Sequence: i + 1, Total: n}
	}
	return members
}

// Segments splits text into one block per URL. When details follow the
// links each block runs from its URL to the next one, otherwise each block
// ends at its URL. URLs that carry no text position get the whole text.
func Segments(text string, urls []domain.ExtractedURL) []string {
	out := make([]string, len(urls))
	inline := make([]int, 0, len(urls))
	for i, u := range urls {
		if u.Start >= len(text) || u.End > len(text) {
			out[i] = text
			continue
		}
		inline = append(inline, i)
	}
	if len(inline) == 0 {
		return out
	}
	if len(inline) == 1 {
		out[inline[0]] = text
		return out
	}

	first, last := urls[inline[0]], urls[inline[len(inline)-1]]
	before := strings.TrimSpace(text[:first.Start])
	after := strings.TrimSpace(text[last.End:])
	leading := len(after) > len(before)

	for n, idx := range inline {
		u := urls[idx]
		if leading {
			end := len(text)
			if n+1 < len(inline) {
				end = urls[inline[n+1]].Start
			}
			out[idx] = text[u.Start:end]
			continue
		}
		start := 0
		if n > 0 {
			start = urls[inline[n-1]].End
		}
		out[idx] = text[start:u.End]
	}
	return out
}
