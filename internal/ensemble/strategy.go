package ensemble

import (
	"fmt"
	"strings"
)

// Strategy names a vote-combining rule.
type Strategy string

const (
	StrategyWeighted  Strategy = "weighted"
	StrategyMajority  Strategy = "majority"
	StrategyUnanimous Strategy = "unanimous"
)

// ParseStrategy maps a config value onto a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(value))); s {
	case StrategyWeighted, StrategyMajority, StrategyUnanimous:
		return s, nil
	case "":
		return StrategyWeighted, nil
	default:
		return "", fmt.Errorf("ensemble strategy: unsupported value %q", value)
	}
}

// Decide combines votes with the given strategy. Every strategy resolves a
// tie to false.
func Decide(strategy Strategy, votes []Vote) (bool, float64) {
	switch strategy {
	case StrategyMajority:
		return majority(votes)
	case StrategyUnanimous:
		return unanimous(votes)
	default:
		return weighted(votes)
	}
}

func split(votes []Vote) (yes, no []Vote) {
	for _, v := range votes {
		if v.HasSubtitles {
			yes = append(yes, v)
		} else {
			no = append(no, v)
		}
	}
	return yes, no
}

// weightedConfidence is sum(confidence*weight)/sum(weight), or 0 when the
// side carries no weight.
func weightedConfidence(votes []Vote) float64 {
	num, den := 0.0, totalWeight(votes)
	if den == 0 {
		return 0
	}
	for _, v := range votes {
		num += v.Confidence * v.Weight
	}
	return num / den
}

func totalWeight(votes []Vote) float64 {
	sum := 0.0
	for _, v := range votes {
		sum += v.Weight
	}
	return sum
}

func meanConfidence(votes []Vote) float64 {
	if len(votes) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range votes {
		sum += v.Confidence
	}
	return sum / float64(len(votes))
}

// weighted compares the weighted confidence of each side. Only when no vote
// carries weight do the sides fall back to mean confidence.
func weighted(votes []Vote) (bool, float64) {
	yes, no := split(votes)
	wy, wn := weightedConfidence(yes), weightedConfidence(no)
	if totalWeight(votes) == 0 {
		wy, wn = meanConfidence(yes), meanConfidence(no)
	}
	if len(yes) > 0 && (len(no) == 0 || wy > wn) {
		return true, wy
	}
	return false, wn
}

func majority(votes []Vote) (bool, float64) {
	yes, no := split(votes)
	if len(yes) > len(no) {
		return true, meanConfidence(yes)
	}
	return false, meanConfidence(no)
}

func unanimous(votes []Vote) (bool, float64) {
	yes, no := split(votes)
	if len(no) > 0 || len(yes) == 0 {
		return false, meanConfidence(no)
	}
	lowest := yes[0].Confidence
	for _, v := range yes[1:] {
		lowest = min(lowest, v.Confidence)
	}
	return true, lowest
}
