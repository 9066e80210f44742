package domain

import "math"

// RiskLevel classifies how likely a project is to slip.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// TimelineStatus classifies schedule health for in-progress projects.
type TimelineStatus string

const (
	TimelineOnTrack TimelineStatus = "on-track"
	TimelineAtRisk  TimelineStatus = "at-risk"
	TimelineDelayed TimelineStatus = "delayed"
)

// HealthReport aggregates the derived indicators for one project. All
// values are computed from store snapshots; nothing here is persisted.
type HealthReport struct {
	ProjectID    string         `json:"projectId"`
	ProgressRate int            `json:"progressRate"`
	QualityScore int            `json:"qualityScore"`
	Risk         RiskLevel      `json:"risk"`
	Timeline     TimelineStatus `json:"timeline,omitempty"`
	Efficiency   int            `json:"efficiency"`
	HealthScore  int            `json:"healthScore"`
}

// ProgressRate is completed/total expressed 0-100, 0 when the project has
// no steps.
func ProgressRate(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// QualityScore deducts 15 points per unresolved high-severity issue and 5
// per medium, floored at 0.
func QualityScore(highIssues, mediumIssues int) int {
	score := 100 - 15*highIssues - 5*mediumIssues
	if score < 0 {
		return 0
	}
	return score
}

// RiskFor classifies project risk from open high-severity issues and the
// progress rate.
func RiskFor(highIssues, progressRate int) RiskLevel {
	switch {
	case highIssues > 2 || progressRate < 30:
		return RiskHigh
	case highIssues > 0 || progressRate < 60:
		return RiskMedium
	default:
		return RiskLow
	}
}

// TimelineFor is only meaningful for in-progress projects; callers should
// omit it otherwise.
func TimelineFor(progressRate int) TimelineStatus {
	switch {
	case progressRate < 40:
		return TimelineDelayed
	case progressRate < 70:
		return TimelineAtRisk
	default:
		return TimelineOnTrack
	}
}

// Efficiency rewards recorded learnings on top of a progress-scaled base,
// capped at 100.
func Efficiency(learnings, progressRate int) int {
	v := 60 + 5*float64(learnings) + 0.3*float64(progressRate)
	if v > 100 {
		return 100
	}
	return int(v)
}

func riskPenalty(risk RiskLevel) int {
	switch risk {
	case RiskHigh:
		return 30
	case RiskMedium:
		return 15
	default:
		return 0
	}
}

// HealthScore is the weighted overall score. Velocity is the progress rate.
func HealthScore(progressRate, quality, efficiency int, risk RiskLevel) int {
	return int(math.Round(
		0.3*float64(progressRate) +
			0.25*float64(quality) +
			0.25*float64(efficiency) +
			0.2*float64(100-riskPenalty(risk))))
}

// ComputeHealth derives the full report for one project from its steps,
// unresolved code issues and learnings count.
func ComputeHealth(p Project, issues []CodeIssue, learningsCount int) HealthReport {
	high, medium := 0, 0
	for _, is := range issues {
		if is.Resolved {
			continue
		}
		switch is.Severity {
		case SeverityHigh:
			high++
		case SeverityMedium:
			medium++
		}
	}

	rate := ProgressRate(p.StepsCompleted, p.TotalSteps)
	quality := QualityScore(high, medium)
	risk := RiskFor(high, rate)
	eff := Efficiency(learningsCount, rate)

	rep := HealthReport{
		ProjectID:    p.ID,
		ProgressRate: rate,
		QualityScore: quality,
		Risk:         risk,
		Efficiency:   eff,
		HealthScore:  HealthScore(rate, quality, eff, risk),
	}
	if p.Status == StatusInProgress {
		rep.Timeline = TimelineFor(rate)
	}
	return rep
}
