package natskv

import (
	"encoding/base64"
	"strconv"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// KV keys are restricted to [-/_=.a-zA-Z0-9] and '.' separates tokens, so
// free-form identifiers are encoded. Group keys and user ids become fixed
// width xxh3 tokens, which keeps keys short and lets one wildcard select a
// whole group or user. Item ids are base64url so the key stays unique.
// Stored values carry the original strings and are checked on read.

const (
	itemPrefix  = "item"
	indexPrefix = "assign"
)

func hashToken(s string) string {
	return strconv.FormatUint(xxh3.HashString(s), 36)
}

func idToken(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func itemKey(ref domain.ItemRef) string {
	return itemPrefix + "." + hashToken(ref.GroupKey) + "." + idToken(ref.ID)
}

// itemPattern selects every item, or every item of one group.
func itemPattern(group *string) string {
	if group == nil {
		return itemPrefix + ".>"
	}
	return itemPrefix + "." + hashToken(*group) + ".*"
}

func indexKey(userID string, id uuid.UUID) string {
	return indexPrefix + "." + hashToken(userID) + "." + id.String()
}

func indexPattern(userID string) string {
	return indexPrefix + "." + hashToken(userID) + ".*"
}

func formatRevision(rev uint64) domain.Version {
	return domain.Version(strconv.FormatUint(rev, 10))
}

func parseRevision(v domain.Version) (uint64, bool) {
	n, err := strconv.ParseUint(string(v), 10, 64)
	return n, err == nil && n > 0
}
