package signaling

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeSource produces candidate session codes. The Registry retries it until
// the produced code does not collide with an active session, so a source does
// not need to know about current sessions. Injectable for deterministic tests.
type CodeSource func() (string, error)

var codeSpan = big.NewInt(9000)

// NewSessionCode draws a 4-digit code uniformly from [1000, 9999] using
// crypto/rand.
func NewSessionCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("generate session code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()+1000), nil
}
