package embeddings

import (
	"strconv"
	"strings"
)

// Serialize converts a vector to the pgvector text format, e.g. "[0.1,0.2,0.3]"
func Serialize(embedding []float32) string {
	var b strings.Builder
	b.Grow(len(embedding)*12 + 2)
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
