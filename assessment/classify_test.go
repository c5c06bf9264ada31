package assessment

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		breaches     uint32
		responseTime uint32
		vulns        uint32
		level        RiskLevel
		rec          string
		flag         SystemicFlag
	}{
		// Score boundaries: 40 and 70 stay below, 41, 71, 100 and 101
		// step through the levels.
		{0, 0, 0, RiskLow, RecommendRoutine, SystemicNone},
		{0, 20, 0, RiskLow, RecommendRoutine, SystemicNone},
		{2, 10, 3, RiskMedium, RecommendRoutine, SystemicNone},
		{0, 35, 0, RiskMedium, RecommendRoutine, SystemicNone},
		{2, 30, 1, RiskHigh, RecommendRoutine, SystemicNone},
		{0, 50, 0, RiskHigh, RecommendRoutine, SystemicNone},
		{2, 40, 3, RiskCritical, RecommendRoutine, SystemicNone},
		// Recommendations trigger independently of the score.
		{3, 0, 0, RiskLow, RecommendEnhanced, SystemicNone},
		{0, 61, 0, RiskCritical, RecommendEnhanced, SystemicNone},
		{0, 0, 6, RiskLow, RecommendEnhanced, SystemicNone},
		{6, 0, 0, RiskLow, RecommendImmediate, SystemicNone},
		{0, 121, 0, RiskCritical, RecommendImmediate, SystemicNone},
		{0, 0, 11, RiskMedium, RecommendImmediate, SystemicNone},
		// Systemic spillover needs both breaches and response time.
		{6, 130, 11, RiskCritical, RecommendImmediate, SystemicPotential},
		{6, 121, 0, RiskCritical, RecommendImmediate, SystemicPotential},
		{11, 181, 0, RiskCritical, RecommendImmediate, SystemicHigh},
		{11, 120, 0, RiskCritical, RecommendImmediate, SystemicNone},
		{5, 130, 0, RiskCritical, RecommendImmediate, SystemicNone},
	} {
		level, rec, flag := classify(tc.breaches, tc.responseTime, tc.vulns)
		require.Equal(t, tc.level, level, "classify(%d, %d, %d)",
			tc.breaches, tc.responseTime, tc.vulns)
		require.Equal(t, tc.rec, rec, "classify(%d, %d, %d)",
			tc.breaches, tc.responseTime, tc.vulns)
		require.Equal(t, tc.flag, flag, "classify(%d, %d, %d)",
			tc.breaches, tc.responseTime, tc.vulns)
	}
}

func TestCategoryKey(t *testing.T) {
	key := CategoryKey(RiskHigh)
	require.Len(t, key, sha256.Size)
	require.Equal(t, key, CategoryKey(RiskHigh))
	require.NotEqual(t, key, CategoryKey(RiskLow))
}

func TestRevealTarget_Validate(t *testing.T) {
	require.Error(t, RevealTarget{}.Validate())
	both := RevealTarget{
		Institution: &InstitutionTarget{ID: 1},
		Category:    &CategoryTarget{Key: CategoryKey(RiskLow)},
	}
	require.Error(t, both.Validate())
	short := RevealTarget{Category: &CategoryTarget{Key: []byte("short")}}
	require.Error(t, short.Validate())

	require.NoError(t, NewInstitutionTarget(4).Validate())
	require.NoError(t, NewCategoryTarget(RiskMedium).Validate())
}
