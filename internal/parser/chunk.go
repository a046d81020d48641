package parser

import (
	"iter"
	"unicode/utf8"

	"esg-pipeline/internal/models"
)

// ChunkText splits text into contiguous chunks of at most maxChars characters (runes).
// The returned sequence is lazy and can be ranged over more than once; concatenating the
// chunk contents reproduces text exactly. Empty text or a non-positive size yields nothing.
func ChunkText(text string, maxChars int) iter.Seq[models.Chunk] {
	return func(yield func(models.Chunk) bool) {
		if maxChars <= 0 {
			return
		}
		start, index := 0, 0
		for start < len(text) {
			end := start
			for n := 0; n < maxChars && end < len(text); n++ {
				_, size := utf8.DecodeRuneInString(text[end:])
				end += size
			}
			if !yield(models.Chunk{Index: index, Content: text[start:end]}) {
				return
			}
			start = end
			index++
		}
	}
}

// CountChunks returns how many chunks ChunkText yields for text
func CountChunks(text string, maxChars int) int {
	if maxChars <= 0 {
		return 0
	}
	n := utf8.RuneCountInString(text)
	return (n + maxChars - 1) / maxChars
}
