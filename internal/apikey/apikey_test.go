package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perimetra/projects-service/internal/model"
)

func TestGenerate_TokenShape(t *testing.T) {
	key := Generate(model.KeyPurposeLive)

	assert.True(t, strings.HasPrefix(key.Token, "live."))
	assert.True(t, strings.HasPrefix(key.Prefix, "live."))
	assert.Len(t, rawPrefix(key.Prefix), prefixLen)
	assert.True(t, strings.HasPrefix(key.Token, key.Prefix))

	// Hex SHA-512 digest
	assert.Len(t, key.Hashed, 128)
	assert.Equal(t, Hash(key.Token), key.Hashed)
}

func TestGenerate_PurposeClassification(t *testing.T) {
	for _, purpose := range model.KeyPurposes {
		key := Generate(purpose)
		got, ok := model.PurposeOfKey(key.Token)
		require.True(t, ok, "generated key must classify: %s", key.Token)
		assert.Equal(t, purpose, got)
	}

	_, ok := model.PurposeOfKey("prod.abcdef0123456789")
	assert.False(t, ok)
	_, ok = model.PurposeOfKey("abcdef0123456789")
	assert.False(t, ok)
}

func TestHash_Deterministic(t *testing.T) {
	assert.Equal(t, Hash("live.abc"), Hash("live.abc"))
	assert.NotEqual(t, Hash("live.abc"), Hash("test.abc"))
}

func TestGenerateSet_CoversAllPurposes(t *testing.T) {
	set := GenerateSet()

	require.Len(t, set, len(model.KeyPurposes))
	for _, purpose := range model.KeyPurposes {
		key, ok := set[purpose]
		require.True(t, ok)
		assert.Equal(t, purpose, key.Purpose)
		assert.NotEmpty(t, key.Token)
		assert.NotEmpty(t, key.Hashed)
	}
}

// Every generated set must satisfy the pairwise prefix distinctness rule;
// run enough iterations to catch a broken regeneration loop.
func TestGenerateSet_PrefixesAdequatelyDistinct(t *testing.T) {
	for i := 0; i < 10000; i++ {
		set := GenerateSet()
		for j, a := range model.KeyPurposes {
			for _, b := range model.KeyPurposes[j+1:] {
				require.True(t,
					adequatelyDistinct(rawPrefix(set[a].Prefix), rawPrefix(set[b].Prefix)),
					"prefixes %q and %q are not adequately distinct",
					set[a].Prefix, set[b].Prefix)
			}
		}
	}
}

func TestAdequatelyDistinct(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"identical", "abc123", "abc123", false},
		{"disjoint", "abc123", "def456", true},
		{"one char differs", "abc123", "abc124", false},
		{"two chars differ", "abc123", "abc145", true},
		{"shorter distinct set wins", "aaaaab", "cdefgh", true},
		{"subset", "aabbcc", "abcdef", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, adequatelyDistinct(tt.a, tt.b))
		})
	}
}

func TestRawPrefix(t *testing.T) {
	assert.Equal(t, "abc123", rawPrefix("live.abc123"))
	assert.Equal(t, "abc123", rawPrefix("abc123"))
}
