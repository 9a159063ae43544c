package natskv

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

var validKey = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

func TestItemKey_IsValidKV(t *testing.T) {
	t.Parallel()

	refs := []domain.ItemRef{
		{GroupKey: "verbs/irregular", ID: "go"},
		{GroupKey: "grupo con espacios", ID: "ñ*>."},
		{GroupKey: "g", ID: "a.b"},
	}
	for _, ref := range refs {
		k := itemKey(ref)
		assert.Regexp(t, validKey, k, "ref %s", ref)
	}
	assert.Regexp(t, validKey, indexKey("user@example.com", uuid.New()))
	assert.NotEqual(t, itemKey(refs[2]), itemKey(domain.ItemRef{GroupKey: "g", ID: "a_b"}))
}

func TestRevision(t *testing.T) {
	t.Parallel()

	rev, ok := parseRevision(formatRevision(42))
	assert.True(t, ok)
	assert.Equal(t, uint64(42), rev)

	for _, v := range []domain.Version{"", "0", "abc", "-1"} {
		_, ok := parseRevision(v)
		assert.False(t, ok, "version %q", v)
	}
}
