package service

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/zhejian/shorty/internal/model"
)

// Base62 character set for short code generation
const base62Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultCodeLength is the length of every generated short code.
const DefaultCodeLength = model.CodeLength

// CodeGenerator produces candidate short codes. Candidates are not unique on
// their own; the allocator checks them against the store.
type CodeGenerator interface {
	Generate() string
}

// ShortCodeGenerator draws each character independently and uniformly from
// the Base62 alphabet.
type ShortCodeGenerator struct {
	alphabet   string
	codeLength int
}

// NewShortCodeGenerator creates a new short code generator
func NewShortCodeGenerator(codeLength int) *ShortCodeGenerator {
	if codeLength <= 0 {
		codeLength = DefaultCodeLength
	}
	return &ShortCodeGenerator{
		alphabet:   base62Chars,
		codeLength: codeLength,
	}
}

// Generate creates a new random short code using crypto/rand.
func (g *ShortCodeGenerator) Generate() string {
	b := make([]byte, g.codeLength)
	alphabetLen := big.NewInt(int64(len(g.alphabet)))

	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = g.alphabet[n.Int64()]
	}

	return string(b)
}

// IsValidURL accepts exactly the strings starting with http:// or https://.
// Anything after the prefix is taken as-is.
func IsValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
