package assessment

// RiskLevel categorizes one assessment and also names its aggregate
// counter.
type RiskLevel string

// The four risk levels, from least to most severe.
const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// RiskLevels lists all levels from least to most severe.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// SystemicFlag marks whether one institution's situation can spill over.
type SystemicFlag string

// The systemic risk flags.
const (
	SystemicNone      SystemicFlag = "None"
	SystemicPotential SystemicFlag = "Potential"
	SystemicHigh      SystemicFlag = "High"
)

// The recommendation texts, selected independently of the risk level.
const (
	RecommendImmediate = "Immediate remediation required; Conduct full security audit"
	RecommendEnhanced  = "Enhance monitoring; Update incident response plan"
	RecommendRoutine   = "Regular maintenance; Staff training recommended"
)

// classify derives the assessment from the three revealed measurements. It
// is pure and total: same inputs, same outputs, no failure modes.
//
// The score runs in uint32 arithmetic and wraps around on overflow; inputs
// large enough to wrap are outside the domain the thresholds were designed
// for.
func classify(breaches, responseTime, vulns uint32) (RiskLevel, string, SystemicFlag) {
	score := breaches*3 + responseTime*2 + vulns*5

	var level RiskLevel
	switch {
	case score > 100:
		level = RiskCritical
	case score > 70:
		level = RiskHigh
	case score > 40:
		level = RiskMedium
	default:
		level = RiskLow
	}

	var recommendations string
	switch {
	case breaches > 5 || responseTime > 120 || vulns > 10:
		recommendations = RecommendImmediate
	case breaches > 2 || responseTime > 60 || vulns > 5:
		recommendations = RecommendEnhanced
	default:
		recommendations = RecommendRoutine
	}

	// Vulnerabilities do not enter the systemic view.
	var flag SystemicFlag
	switch {
	case breaches > 10 && responseTime > 180:
		flag = SystemicHigh
	case breaches > 5 && responseTime > 120:
		flag = SystemicPotential
	default:
		flag = SystemicNone
	}

	return level, recommendations, flag
}
