package ensemble

import "math"

// DefaultConflictThreshold is the confidence above which a dissenting vote
// counts as a confident disagreement. Empirically calibrated.
const DefaultConflictThreshold = 0.80

// ConflictDividedHighConfidence is the only conflict type currently raised.
const ConflictDividedHighConfidence = "divided_high_confidence"

// Severity and uncertainty levels.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

const (
	highSpread     = 0.4
	mediumSpread   = 0.2
	highEntropy    = 0.9
	reliableSpread = 0.2
)

// ConflictAnalysis describes a confident split vote.
type ConflictAnalysis struct {
	Type                  string   `json:"type"`
	Severity              string   `json:"severity"`
	Threshold             float64  `json:"threshold"`
	MinoritySide          bool     `json:"minority_side"`
	MinorityMaxConfidence float64  `json:"minority_max_confidence"`
	MajorityMaxConfidence float64  `json:"majority_max_confidence"`
	Dissenters            []string `json:"dissenters"`
}

// UncertaintyAnalysis summarizes how much the engines agreed.
type UncertaintyAnalysis struct {
	ConfidenceSpread float64 `json:"confidence_spread"`
	Entropy          float64 `json:"entropy"`
	Unanimous        bool    `json:"unanimous"`
	Level            string  `json:"level"`
	Reliable         bool    `json:"reliable"`
}

// DetectConflict flags a split vote whose minority holds a vote above
// threshold. decision breaks a tie in vote counts: the side opposite the
// decision is the minority. It returns nil when there is no conflict.
func DetectConflict(votes []Vote, decision bool, threshold float64) *ConflictAnalysis {
	yes, no := split(votes)
	if len(yes) == 0 || len(no) == 0 {
		return nil
	}

	minoritySide := !decision
	switch {
	case len(yes) < len(no):
		minoritySide = true
	case len(no) < len(yes):
		minoritySide = false
	}
	minority, majority := no, yes
	if minoritySide {
		minority, majority = yes, no
	}

	minorityMax := maxConfidence(minority)
	if minorityMax <= threshold {
		return nil
	}
	majorityMax := maxConfidence(majority)

	severity := LevelMedium
	if majorityMax > threshold {
		severity = LevelHigh
	}
	dissenters := make([]string, 0, len(minority))
	for _, v := range minority {
		dissenters = append(dissenters, v.Engine)
	}
	return &ConflictAnalysis{
		Type:                  ConflictDividedHighConfidence,
		Severity:              severity,
		Threshold:             threshold,
		MinoritySide:          minoritySide,
		MinorityMaxConfidence: minorityMax,
		MajorityMaxConfidence: majorityMax,
		Dissenters:            dissenters,
	}
}

// EstimateUncertainty computes confidence spread, binary vote entropy, and
// the resulting level. It returns nil for an empty vote set.
func EstimateUncertainty(votes []Vote) *UncertaintyAnalysis {
	if len(votes) == 0 {
		return nil
	}
	lo, hi := votes[0].Confidence, votes[0].Confidence
	for _, v := range votes[1:] {
		lo = math.Min(lo, v.Confidence)
		hi = math.Max(hi, v.Confidence)
	}
	yes, _ := split(votes)
	p := float64(len(yes)) / float64(len(votes))

	u := &UncertaintyAnalysis{
		ConfidenceSpread: hi - lo,
		Entropy:          binaryEntropy(p),
		Unanimous:        len(yes) == 0 || len(yes) == len(votes),
	}
	switch {
	case u.ConfidenceSpread > highSpread || u.Entropy > highEntropy:
		u.Level = LevelHigh
	case u.ConfidenceSpread > mediumSpread || !u.Unanimous:
		u.Level = LevelMedium
	default:
		u.Level = LevelLow
	}
	u.Reliable = u.ConfidenceSpread <= reliableSpread && u.Unanimous
	return u
}

// binaryEntropy is H(p) in bits; 0 at p=0 and p=1, 1 at p=0.5.
func binaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

func maxConfidence(votes []Vote) float64 {
	best := 0.0
	for _, v := range votes {
		best = math.Max(best, v.Confidence)
	}
	return best
}
