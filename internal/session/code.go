package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeWords is the pool of join-code words. Short, unambiguous, and easy to
// say out loud when inviting someone into a session.
var codeWords = []string{
	"AMBER", "BIRCH", "CEDAR", "DELTA", "EMBER",
	"FLINT", "GROVE", "HAZEL", "IRIS", "JUNIPER",
	"KITE", "LOTUS", "MAPLE", "NOVA", "OPAL",
	"PINE", "QUILL", "RIVER", "SAGE", "TIDE",
}

// GenerateCode produces a random join code of the form WORD-N with N in
// [1, 99], e.g. "MAPLE-42". With 20 words the space holds 1980 codes, which
// is plenty for concurrently active sessions; collisions are handled by the
// registry's unique constraint and a retry.
func GenerateCode() (string, error) {
	w, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeWords))))
	if err != nil {
		return "", fmt.Errorf("session: generate code: %w", err)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(99))
	if err != nil {
		return "", fmt.Errorf("session: generate code: %w", err)
	}
	return fmt.Sprintf("%s-%d", codeWords[w.Int64()], n.Int64()+1), nil
}
