package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Generator creates opaque references for synced entities.
type Generator interface {
	NewRef(prefix string) (string, error)
}

type RandomGenerator struct {
	size int
}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{size: 12}
}

// NewRef returns "<prefix>_<hex>" or a bare hex string when prefix is
// empty.
func (g *RandomGenerator) NewRef(prefix string) (string, error) {
	size := g.size
	if size <= 0 {
		size = 12
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	encoded := hex.EncodeToString(buf)
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return encoded, nil
	}
	return prefix + "_" + encoded, nil
}
