package domain

import "testing"

func TestProgressRate(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		total     int
		want      int
	}{
		{name: "noSteps", completed: 0, total: 0, want: 0},
		{name: "half", completed: 1, total: 2, want: 50},
		{name: "third", completed: 1, total: 3, want: 33},
		{name: "twoThirds", completed: 2, total: 3, want: 67},
		{name: "complete", completed: 5, total: 5, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProgressRate(tt.completed, tt.total); got != tt.want {
				t.Fatalf("ProgressRate(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
			}
		})
	}
}

func TestQualityScore(t *testing.T) {
	if got := QualityScore(0, 0); got != 100 {
		t.Fatalf("clean project: %d", got)
	}
	if got := QualityScore(1, 2); got != 75 {
		t.Fatalf("one high two medium: %d", got)
	}
	if got := QualityScore(7, 0); got != 0 {
		t.Fatalf("expected floor at 0, got %d", got)
	}
}

func TestRiskFor(t *testing.T) {
	tests := []struct {
		name string
		high int
		rate int
		want RiskLevel
	}{
		{name: "manyHighIssues", high: 3, rate: 90, want: RiskHigh},
		{name: "earlyProject", high: 0, rate: 29, want: RiskHigh},
		{name: "someHighIssues", high: 1, rate: 90, want: RiskMedium},
		{name: "midProgress", high: 0, rate: 45, want: RiskMedium},
		{name: "healthy", high: 0, rate: 80, want: RiskLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RiskFor(tt.high, tt.rate); got != tt.want {
				t.Fatalf("RiskFor(%d, %d) = %s, want %s", tt.high, tt.rate, got, tt.want)
			}
		})
	}
}

func TestTimelineFor(t *testing.T) {
	if got := TimelineFor(39); got != TimelineDelayed {
		t.Fatalf("39: %s", got)
	}
	if got := TimelineFor(40); got != TimelineAtRisk {
		t.Fatalf("40: %s", got)
	}
	if got := TimelineFor(70); got != TimelineOnTrack {
		t.Fatalf("70: %s", got)
	}
}

func TestEfficiencyCapped(t *testing.T) {
	if got := Efficiency(0, 0); got != 60 {
		t.Fatalf("base: %d", got)
	}
	if got := Efficiency(2, 50); got != 85 {
		t.Fatalf("mixed: %d", got)
	}
	if got := Efficiency(10, 100); got != 100 {
		t.Fatalf("expected cap at 100, got %d", got)
	}
}

func TestComputeHealth(t *testing.T) {
	p := Project{
		ID:             "p1",
		Status:         StatusInProgress,
		StepsCompleted: 2,
		TotalSteps:     4,
	}
	issues := []CodeIssue{
		{Severity: SeverityHigh},
		{Severity: SeverityHigh, Resolved: true},
		{Severity: SeverityMedium},
		{Severity: SeverityLow},
	}

	rep := ComputeHealth(p, issues, 3)

	if rep.ProjectID != "p1" {
		t.Fatalf("project id: %s", rep.ProjectID)
	}
	if rep.ProgressRate != 50 {
		t.Fatalf("progress rate: %d", rep.ProgressRate)
	}
	// One unresolved high, one medium.
	if rep.QualityScore != 80 {
		t.Fatalf("quality: %d", rep.QualityScore)
	}
	if rep.Risk != RiskMedium {
		t.Fatalf("risk: %s", rep.Risk)
	}
	if rep.Timeline != TimelineAtRisk {
		t.Fatalf("timeline: %s", rep.Timeline)
	}
	if rep.Efficiency != 90 {
		t.Fatalf("efficiency: %d", rep.Efficiency)
	}
	// 0.3*50 + 0.25*80 + 0.25*90 + 0.2*85 = 74.5 -> 75
	if rep.HealthScore != 75 {
		t.Fatalf("health score: %d", rep.HealthScore)
	}
}

func TestComputeHealthTimelineOnlyInProgress(t *testing.T) {
	p := Project{ID: "p1", Status: StatusPlanning, StepsCompleted: 1, TotalSteps: 2}
	rep := ComputeHealth(p, nil, 0)
	if rep.Timeline != "" {
		t.Fatalf("expected empty timeline for planning project, got %s", rep.Timeline)
	}
}

func TestResolvedIssuesDoNotCountAgainstQuality(t *testing.T) {
	p := Project{ID: "p1", StepsCompleted: 4, TotalSteps: 4}
	issues := []CodeIssue{
		{Severity: SeverityHigh, Resolved: true},
		{Severity: SeverityMedium, Resolved: true},
	}
	rep := ComputeHealth(p, issues, 0)
	if rep.QualityScore != 100 {
		t.Fatalf("quality: %d", rep.QualityScore)
	}
	if rep.Risk != RiskLow {
		t.Fatalf("risk: %s", rep.Risk)
	}
}
