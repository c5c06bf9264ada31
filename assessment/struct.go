package assessment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/xerrors"
)

// CategoryKey derives the digest under which a risk level is listed in the
// category registry. Reveal targets carry the digest, not the name, so
// that the pending-request table never depends on how categories are
// spelled.
func CategoryKey(category RiskLevel) []byte {
	sum := sha256.Sum256([]byte(category))
	return sum[:]
}

// NewInstitutionTarget builds a target for one measurement's assessment.
func NewInstitutionTarget(id uint64) RevealTarget {
	return RevealTarget{Institution: &InstitutionTarget{ID: id}}
}

// NewCategoryTarget builds a target for one category counter.
func NewCategoryTarget(category RiskLevel) RevealTarget {
	return RevealTarget{Category: &CategoryTarget{Key: CategoryKey(category)}}
}

// Validate returns an error unless exactly one arm of the target is set.
func (t RevealTarget) Validate() error {
	switch {
	case t.Institution == nil && t.Category == nil:
		return xerrors.New("reveal target is empty")
	case t.Institution != nil && t.Category != nil:
		return xerrors.New("reveal target has both an institution and a category")
	case t.Category != nil && len(t.Category.Key) != sha256.Size:
		return xerrors.Errorf("category key has %d bytes, want %d",
			len(t.Category.Key), sha256.Size)
	}
	return nil
}

// String prints the target for logs.
func (t RevealTarget) String() string {
	switch {
	case t.Institution != nil:
		return fmt.Sprintf("institution %d", t.Institution.ID)
	case t.Category != nil:
		return fmt.Sprintf("category %s", hex.EncodeToString(t.Category.Key))
	}
	return "empty target"
}
