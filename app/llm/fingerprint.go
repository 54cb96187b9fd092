package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint identifies one generation request for the result cache. The
// operation, model and token budget are part of the key: the same content
// summarized and deep-analyzed are distinct cache entries.
func Fingerprint(content, operation, model string, maxTokens int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", content, operation, model, maxTokens)
	return hex.EncodeToString(h.Sum(nil))
}
