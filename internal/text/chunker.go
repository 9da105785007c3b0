package text

import "strings"

const (
	DefaultChunkSize = 2000
	DefaultOverlap   = 250

	// A window is cut at its last period only when that period lies past this
	// fraction of the window, so short leading sentences never shrink a chunk.
	boundaryRatio = 0.6
)

// Segment is an ordered, overlapping slice of the source document.
type Segment struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// Chunk splits text into windows of chunkSize characters that overlap by
// overlap characters. Windows prefer to end right after a sentence period.
// A non-positive chunkSize falls back to the default and a negative overlap
// means none. An overlap that would stall the walk is clamped so every
// window starts after the previous one.
func Chunk(text string, chunkSize, overlap int) []Segment {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	runes := []rune(text)
	n := len(runes)
	minTail := int(float64(chunkSize) * boundaryRatio)

	var segments []Segment
	start := 0
	for start < n {
		// The final window always runs to the end of the text.
		end := start + chunkSize
		if end >= n {
			end = n
		} else if last := lastPeriod(runes[start:end]); last > minTail {
			end = start + last + 1
		}

		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			segments = append(segments, Segment{Text: s, Index: len(segments)})
		}
		if end >= n {
			break
		}

		next := end - overlap
		if next < start+1 {
			next = start + 1
		}
		start = next
	}
	return segments
}

func lastPeriod(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' {
			return i
		}
	}
	return -1
}
