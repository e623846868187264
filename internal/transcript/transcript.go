// Package transcript defines the timed-text model shared by the transcriber,
// the cache, the HTTP surface, and playback sync.
package transcript

import "strings"

// Word is a single recognized token with its timing in seconds.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is a contiguous run of speech. When word-level timings exist the
// segment bounds derive from the first and last word; otherwise the
// model-provided bounds stand.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words,omitempty"`
}

// Transcript is the ordered segment stream for one audio file. It is keyed by
// the audio's content identity and immutable once written.
type Transcript struct {
	Segments []Segment `json:"segments"`
}

// Duration returns the end time of the last segment in seconds.
func (t Transcript) Duration() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}

// WordCount returns the total number of word-level entries.
func (t Transcript) WordCount() int {
	count := 0
	for _, seg := range t.Segments {
		count += len(seg.Words)
	}
	return count
}

// Normalize converts raw model output into the canonical transcript shape:
// word tokens are trimmed, segment text is rebuilt from words with
// single-space joins, segment bounds snap to the first/last word, and
// segments without usable text are dropped. Segments lacking word timings
// keep their model-provided text and bounds.
func Normalize(raw []Segment) Transcript {
	segments := make([]Segment, 0, len(raw))
	for _, seg := range raw {
		normalized, ok := normalizeSegment(seg)
		if !ok {
			continue
		}
		segments = append(segments, normalized)
	}
	return Transcript{Segments: segments}
}

func normalizeSegment(seg Segment) (Segment, bool) {
	words := make([]Word, 0, len(seg.Words))
	for _, w := range seg.Words {
		token := strings.TrimSpace(w.Word)
		if token == "" {
			continue
		}
		words = append(words, Word{Word: token, Start: w.Start, End: w.End})
	}

	if len(words) == 0 {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			return Segment{}, false
		}
		return Segment{Text: text, Start: seg.Start, End: seg.End}, true
	}

	tokens := make([]string, len(words))
	for i, w := range words {
		tokens[i] = w.Word
	}
	return Segment{
		Text:  strings.Join(tokens, " "),
		Start: words[0].Start,
		End:   words[len(words)-1].End,
		Words: words,
	}, true
}
