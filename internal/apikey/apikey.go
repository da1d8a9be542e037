// Package apikey generates and hashes purpose-scoped project API keys.
//
// Only the SHA-512 hash of a full key is ever persisted; lookups hash the
// presented token and match it against the uniqueness projection. The short
// display prefix is kept in cleartext so users can tell their keys apart.
package apikey

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/perimetra/projects-service/internal/model"
)

// prefixLen is the number of token characters shown to users.
const prefixLen = 6

// Key is one generated credential. Token is the full cleartext key, shown
// to the caller exactly once at generation time.
type Key struct {
	Purpose model.KeyPurpose
	Token   string
	Prefix  string
	Hashed  string
}

// Generate draws a single key for the given purpose.
func Generate(purpose model.KeyPurpose) Key {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	token := string(purpose) + "." + raw
	return Key{
		Purpose: purpose,
		Token:   token,
		Prefix:  string(purpose) + "." + raw[:prefixLen],
		Hashed:  Hash(token),
	}
}

// GenerateSet draws one key per purpose, regenerating the whole set until
// every pair of display prefixes is adequately distinct. Confusingly similar
// prefixes shown across environments are how live keys end up in test
// configs.
func GenerateSet() map[model.KeyPurpose]Key {
	for {
		set := make(map[model.KeyPurpose]Key, len(model.KeyPurposes))
		for _, purpose := range model.KeyPurposes {
			set[purpose] = Generate(purpose)
		}
		if prefixesAdequatelyDistinct(set) {
			return set
		}
	}
}

// Hash returns the hex-encoded SHA-512 digest of a full key token.
func Hash(token string) string {
	sum := sha512.Sum512([]byte(token))
	return hex.EncodeToString(sum[:])
}

func prefixesAdequatelyDistinct(set map[model.KeyPurpose]Key) bool {
	for i, a := range model.KeyPurposes {
		for _, b := range model.KeyPurposes[i+1:] {
			if !adequatelyDistinct(rawPrefix(set[a].Prefix), rawPrefix(set[b].Prefix)) {
				return false
			}
		}
	}
	return true
}

// rawPrefix strips the purpose tag; distinctness is judged on the random
// characters only, the tags differ by construction.
func rawPrefix(prefix string) string {
	if i := strings.IndexByte(prefix, '.'); i >= 0 {
		return prefix[i+1:]
	}
	return prefix
}

// adequatelyDistinct compares the prefix with fewer distinct characters
// against the other prefix and counts characters of the former that appear
// nowhere in the latter. At least two such characters are required.
func adequatelyDistinct(a, b string) bool {
	distinctA := distinctChars(a)
	distinctB := distinctChars(b)

	shorter, longer := distinctA, b
	if len(distinctB) < len(distinctA) {
		shorter, longer = distinctB, a
	}

	diff := 0
	for ch := range shorter {
		if !strings.ContainsRune(longer, ch) {
			diff++
			if diff >= 2 {
				return true
			}
		}
	}
	return false
}

func distinctChars(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, ch := range s {
		set[ch] = struct{}{}
	}
	return set
}
