package profile

import "math"

// Compatibility scores how well two agents are likely to collaborate,
// returning a symmetric value in [0, 1]. The score blends similarity on
// dimensions where alignment helps (conscientiousness, agreeableness,
// neuroticism) with complementarity on dimensions where contrast helps
// (extraversion balance, shared openness).
func Compatibility(a, b *AgentProfile) float64 {
	if a == nil || b == nil {
		return 0
	}

	pa, pb := a.Personality, b.Personality

	similarity := (closeness(pa.Conscientiousness, pb.Conscientiousness) +
		closeness(pa.Agreeableness, pb.Agreeableness) +
		closeness(pa.Neuroticism, pb.Neuroticism)) / 3

	// One outgoing and one reserved agent pair well; two of either less so.
	extraversionBalance := 1 - math.Abs((pa.Extraversion+pb.Extraversion)-1)
	opennessMean := (pa.Openness + pb.Openness) / 2
	complementarity := (extraversionBalance + opennessMean) / 2

	score := 0.6*similarity + 0.4*complementarity
	return clamp01(score)
}

// TeamBalanceReport aggregates pairwise compatibility and skill coverage
// over a candidate team.
type TeamBalanceReport struct {
	MeanCompatibility float64            `json:"mean_compatibility"`
	SkillCoverage     map[string]float64 `json:"skill_coverage"` // skill name -> max level
	Score             float64            `json:"score"`
}

// TeamBalance evaluates a set of profiles as a team: mean pairwise
// compatibility plus the union of skills at their best available level.
func TeamBalance(profiles []*AgentProfile) TeamBalanceReport {
	report := TeamBalanceReport{
		SkillCoverage: make(map[string]float64),
	}
	if len(profiles) == 0 {
		return report
	}

	for _, p := range profiles {
		for _, s := range p.Skills {
			if s.Level > report.SkillCoverage[s.Name] {
				report.SkillCoverage[s.Name] = s.Level
			}
		}
	}

	if len(profiles) == 1 {
		report.MeanCompatibility = 1
	} else {
		var sum float64
		var pairs int
		for i := 0; i < len(profiles); i++ {
			for j := i + 1; j < len(profiles); j++ {
				sum += Compatibility(profiles[i], profiles[j])
				pairs++
			}
		}
		report.MeanCompatibility = sum / float64(pairs)
	}

	var levelSum float64
	for _, level := range report.SkillCoverage {
		levelSum += level / 100
	}
	coverageScore := 0.0
	if len(report.SkillCoverage) > 0 {
		coverageScore = levelSum / float64(len(report.SkillCoverage))
	}

	report.Score = clamp01(0.5*report.MeanCompatibility + 0.5*coverageScore)
	return report
}

func closeness(a, b float64) float64 {
	return 1 - math.Abs(a-b)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
