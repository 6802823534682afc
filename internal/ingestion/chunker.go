package ingestion

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/54b3r/tubeqa-go/internal/transcript"
)

// Chunking defaults, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order, coarsest first.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

// Chunker splits text recursively on progressively finer separators so that
// every chunk is at most Size characters, carrying up to Overlap characters
// of the previous chunk forward on a word boundary.
type Chunker struct {
	// Size is the maximum chunk length in characters.
	Size int
	// Overlap is the maximum number of trailing characters repeated at the
	// start of the next chunk.
	Overlap int
	// Separators are tried in order; text with none of them is hard-split.
	Separators []string
}

// NewChunker returns a Chunker with the given limits. Non-positive size means
// DefaultChunkSize; overlap is clamped below size.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &Chunker{Size: size, Overlap: overlap, Separators: DefaultSeparators}
}

// span is a half-open byte range into the text being chunked.
type span struct{ lo, hi int }

// Split returns the trimmed, non-empty chunks of text.
func (c *Chunker) Split(text string) []string {
	var out []string
	for _, s := range c.spans(text) {
		if t := strings.TrimSpace(text[s.lo:s.hi]); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ChunkCues joins cues one per line, chunks the result, and stamps each
// chunk with the start of the first cue and the end of the last cue it
// covers.
func (c *Chunker) ChunkCues(cues []Cue) []transcript.Chunk {
	var b strings.Builder
	offsets := make([]span, len(cues))
	for i, cue := range cues {
		if i > 0 {
			b.WriteByte('\n')
		}
		offsets[i].lo = b.Len()
		b.WriteString(strings.TrimSpace(cue.Text))
		offsets[i].hi = b.Len()
	}
	text := b.String()

	var chunks []transcript.Chunk
	for _, s := range c.spans(text) {
		s = trimSpan(text, s)
		if s.lo >= s.hi {
			continue
		}
		first, last := -1, -1
		for i, o := range offsets {
			if o.hi > s.lo && o.lo < s.hi {
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		if first < 0 {
			continue
		}
		chunks = append(chunks, transcript.Chunk{
			Index:     len(chunks),
			StartTime: transcript.FormatTimestamp(cues[first].Start),
			EndTime:   transcript.FormatTimestamp(cues[last].End),
			Text:      text[s.lo:s.hi],
		})
	}
	return chunks
}

func (c *Chunker) spans(text string) []span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, span{0, len(text)}, c.Separators)
}

func (c *Chunker) split(text string, r span, seps []string) []span {
	if c.fits(text, r) {
		return []span{r}
	}
	for i, sep := range seps {
		if !strings.Contains(text[r.lo:r.hi], sep) {
			continue
		}
		finer := seps[i+1:]

		var out []span
		cur := span{-1, -1}
		// start begins a new current span at p, recursing when p alone is
		// too long.
		start := func(p span) {
			if c.fits(text, p) {
				cur = p
				return
			}
			sub := c.split(text, p, finer)
			out = append(out, sub[:len(sub)-1]...)
			cur = sub[len(sub)-1]
		}
		for _, p := range pieces(text, r, sep) {
			switch {
			case cur.lo < 0:
				if p.lo < p.hi {
					start(p)
				}
			case c.fits(text, span{cur.lo, p.hi}):
				cur.hi = p.hi
			default:
				out = append(out, cur)
				if ol := c.overlapStart(text, cur); ol < cur.hi && c.fits(text, span{ol, p.hi}) {
					cur = span{ol, p.hi}
				} else {
					start(p)
				}
			}
		}
		if cur.lo >= 0 {
			out = append(out, cur)
		}
		return out
	}
	return c.hardSplit(text, r)
}

// pieces splits r on sep, returning the ranges between separators.
func pieces(text string, r span, sep string) []span {
	var out []span
	lo := r.lo
	for {
		i := strings.Index(text[lo:r.hi], sep)
		if i < 0 {
			break
		}
		out = append(out, span{lo, lo + i})
		lo += i + len(sep)
	}
	return append(out, span{lo, r.hi})
}

// hardSplit cuts r into Size-character windows, backing off to the last
// space in each window when there is one.
func (c *Chunker) hardSplit(text string, r span) []span {
	var out []span
	start := r.lo
	for start < r.hi {
		end := advance(text, start, c.Size, r.hi)
		if end >= r.hi {
			out = append(out, span{start, r.hi})
			break
		}
		if sp := strings.LastIndexByte(text[start:end], ' '); sp > 0 {
			end = start + sp
		}
		out = append(out, span{start, end})
		next := retreat(text, end, c.Overlap, start)
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// overlapStart returns where the overlap carried out of s begins: Overlap
// characters back from s.hi, moved forward past the first space so the
// overlap never opens mid-word.
func (c *Chunker) overlapStart(text string, s span) int {
	if c.Overlap == 0 {
		return s.hi
	}
	o := retreat(text, s.hi, c.Overlap, s.lo)
	if o > s.lo {
		if sp := strings.IndexByte(text[o:s.hi], ' '); sp >= 0 {
			o += sp + 1
		}
	}
	return o
}

func (c *Chunker) fits(text string, s span) bool {
	return utf8.RuneCountInString(text[s.lo:s.hi]) <= c.Size
}

// advance moves pos forward n runes, stopping at limit.
func advance(text string, pos, n, limit int) int {
	for ; n > 0 && pos < limit; n-- {
		_, sz := utf8.DecodeRuneInString(text[pos:])
		pos += sz
	}
	return pos
}

// retreat moves pos back n runes, stopping at floor.
func retreat(text string, pos, n, floor int) int {
	for ; n > 0 && pos > floor; n-- {
		_, sz := utf8.DecodeLastRuneInString(text[:pos])
		pos -= sz
	}
	return pos
}

func trimSpan(text string, s span) span {
	for s.lo < s.hi {
		r, sz := utf8.DecodeRuneInString(text[s.lo:])
		if !unicode.IsSpace(r) {
			break
		}
		s.lo += sz
	}
	for s.hi > s.lo {
		r, sz := utf8.DecodeLastRuneInString(text[:s.hi])
		if !unicode.IsSpace(r) {
			break
		}
		s.hi -= sz
	}
	return s
}
