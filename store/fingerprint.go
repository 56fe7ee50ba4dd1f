package store

import (
	"hash/fnv"
	"math"
	"strings"
)

// DefaultFingerprintDim is the vec_questions dimension used by the CLI and
// server.
const DefaultFingerprintDim = 64

// Fingerprint hashes the character trigrams of text into a dim-length,
// L2-normalized count vector. Texts that differ by a few characters get
// close fingerprints, so a cosine KNN over them finds near duplicates.
func Fingerprint(text string, dim int) []float32 {
	v := make([]float32, dim)
	norm := " " + strings.Join(strings.Fields(strings.ToLower(text)), " ") + " "
	runes := []rune(norm)

	h := fnv.New32a()
	for i := 0; i+3 <= len(runes); i++ {
		h.Reset()
		h.Write([]byte(string(runes[i : i+3])))
		v[h.Sum32()%uint32(dim)]++
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= scale
	}
	return v
}
