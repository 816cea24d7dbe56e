package text

import (
	"regexp"
	"strings"
)

// Piece is one chunk of a source document: the unit of embedding and
// retrieval. Index is the 0-based position among the pieces of the same
// document and is stable across re-runs.
type Piece struct {
	Text  string
	Index int
}

var (
	crlfRe      = regexp.MustCompile(`\r\n?`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
	spaceRunRe  = regexp.MustCompile(`[ \t]{2,}`)
	trailWS     = regexp.MustCompile(`[ \t]+\n`)
)

// Normalize canonicalizes whitespace before chunking: CR/CRLF become LF,
// trailing spaces are stripped, runs of blank lines collapse to one and
// runs of spaces/tabs collapse to a single space.
func Normalize(s string) string {
	s = crlfRe.ReplaceAllString(s, "\n")
	s = trailWS.ReplaceAllString(s, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Chunk splits text into ordered, overlapping windows. Cut points advance
// by size over new material and snap backwards to the nearest paragraph,
// sentence or word boundary within a bounded lookback; every piece after
// the first is extended backwards by overlap characters, so consecutive
// pieces share exactly that many characters and the non-overlapping
// portions concatenate back to the input.
//
// Text no longer than size yields a single piece with no overlap. Empty or
// whitespace-only text yields no pieces. The function is pure: the same
// input always produces the same sequence.
func Chunk(text string, size, overlap int) []Piece {
	if strings.TrimSpace(text) == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	if len(text) <= size {
		return []Piece{{Text: text, Index: 0}}
	}

	var pieces []Piece
	prev := 0
	for prev < len(text) {
		cut := prev + size
		if cut >= len(text) {
			cut = len(text)
		} else {
			cut = snapCut(text, prev, cut, size/4)
			// A tail shorter than the overlap would be fully contained in
			// the next piece's backward extension; absorb it instead.
			if len(text)-cut <= overlap {
				cut = len(text)
			}
		}

		start := prev
		if len(pieces) > 0 {
			start = prev - overlap
			if start < 0 {
				start = 0
			}
		}

		pieces = append(pieces, Piece{Text: text[start:cut], Index: len(pieces)})
		prev = cut
	}

	return pieces
}

// snapCut moves a hard cut backwards to the nearest natural boundary within
// lookback characters: paragraph break first, then sentence end, then word
// break. Returns the original cut when no boundary makes progress past prev.
func snapCut(text string, prev, cut, lookback int) int {
	low := cut - lookback
	if low <= prev {
		low = prev + 1
	}
	window := text[low:cut]

	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return low + i + 2
	}
	for _, end := range []string{". ", ".\n", "! ", "? "} {
		if i := strings.LastIndex(window, end); i >= 0 {
			return low + i + len(end)
		}
	}
	if i := strings.LastIndexAny(window, " \n"); i >= 0 {
		return low + i + 1
	}
	return cut
}
