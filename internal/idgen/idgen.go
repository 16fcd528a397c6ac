// Package idgen генерирует короткие идентификаторы ссылок.
package idgen

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jaevor/go-nanoid"
)

// Значения по умолчанию: 6 символов base36
const (
	DefaultLength   = 6
	DefaultAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// ErrInvalidGenerator возвращается при некорректных параметрах генератора
var ErrInvalidGenerator = errors.New("invalid id generator settings")

// Generator produces short identifiers. Uniqueness is not guaranteed;
// the record store rejects collisions.
type Generator interface {
	Generate() (string, error)
}

// Func adapts a plain function to Generator.
type Func func() (string, error)

func (f Func) Generate() (string, error) {
	return f()
}

type nanoIDGenerator struct {
	mu   sync.Mutex
	next func() string
}

// NewNanoID создаёт генератор на базе nanoid (crypto/rand)
func NewNanoID(length int, alphabet string) (Generator, error) {
	if length < 2 || length > 255 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidGenerator, length)
	}
	if len(alphabet) < 2 || len(alphabet) > 255 || !uniqueASCII(alphabet) {
		return nil, fmt.Errorf("%w: alphabet %q", ErrInvalidGenerator, alphabet)
	}

	next, err := nanoid.CustomASCII(alphabet, length)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGenerator, err)
	}

	return &nanoIDGenerator{next: next}, nil
}

func (g *nanoIDGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next(), nil
}

func uniqueASCII(s string) bool {
	var seen [128]bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 128 || seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}
