package embedding

import (
	"crypto/md5"
	"encoding/binary"
	"math"
	"math/rand"
)

// fallbackVector derives a unit vector from the md5 digest of text.
// The generator is seeded from the first four digest bytes, so equal texts
// always map to equal vectors and distinct texts are nearly orthogonal.
func fallbackVector(text string, dimension int) []float32 {
	sum := md5.Sum([]byte(text))
	seed := int64(binary.BigEndian.Uint32(sum[:4]))
	r := rand.New(rand.NewSource(seed))

	draws := make([]float64, dimension)
	var norm float64
	for i := range draws {
		x := r.NormFloat64()
		draws[i] = x
		norm += x * x
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, dimension)
	if norm == 0 {
		return vec
	}
	for i, x := range draws {
		vec[i] = float32(x / norm)
	}
	return vec
}

func zeroVector(dimension int) []float32 {
	return make([]float32, dimension)
}
