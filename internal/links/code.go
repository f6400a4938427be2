package links

import "github.com/jaevor/go-nanoid"

// DefaultCodeLength is the number of characters in a generated short code.
const DefaultCodeLength = 8

// CodeGenerator generates candidate short codes.
type CodeGenerator func() string

// NewCodeGenerator returns a generator of URL-safe codes of the given length,
// drawn from crypto/rand over the alphabet A-Za-z0-9_-.
func NewCodeGenerator(length int) (CodeGenerator, error) {
	gen, err := nanoid.Standard(length)
	if err != nil {
		return nil, err
	}

	return CodeGenerator(gen), nil
}
