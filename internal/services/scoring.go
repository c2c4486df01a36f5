package services

import (
	"sort"
	"time"

	"github.com/moltbook-governance/recruiter/internal/models"
)

// Recruitment thresholds. A candidate must score strictly above
// qualifiedThreshold to receive an invitation; activityWindowDays bounds how
// stale a profile may be before it is skipped for the cycle.
const (
	qualifiedThreshold = 70.0
	activityWindowDays = 7
)

// Scorer computes candidate scores against the configured campaign targets.
// Both scoring functions are pure; missing fields score zero.
type Scorer struct {
	MinKarma             int
	AutoApproveThreshold float64
	TargetCategories     []string
	MaxPerCycle          int
}

// ScoredCandidate pairs a candidate snapshot with its recruitment score
type ScoredCandidate struct {
	models.Candidate
	Score float64
}

func (s *Scorer) matchingTags(specializations []string) int {
	targets := make(map[string]bool, len(s.TargetCategories))
	for _, t := range s.TargetCategories {
		targets[t] = true
	}

	matches := 0
	seen := make(map[string]bool, len(specializations))
	for _, spec := range specializations {
		if targets[spec] && !seen[spec] {
			seen[spec] = true
			matches++
		}
	}
	return matches
}

// RecruitmentScore maps a candidate's raw attributes to a score in [0,100]:
// karma up to 40, specialization overlap up to 30 (6 per tag), activity up to
// 20, social reach up to 10.
func (s *Scorer) RecruitmentScore(c models.Candidate) float64 {
	score := 0.0

	score += min(float64(c.Karma)/10, 40)
	score += min(float64(s.matchingTags(c.Specializations))*6, 30)
	score += min(c.PostsPerMonth, 20)
	score += min(float64(c.Followers)/10, 10)

	return score
}

// ApprovalScore is the auto-approval gate. Deliberately a different, uncapped
// additive scale from RecruitmentScore: karma at or above the auto-approve
// threshold contributes a flat 100, posting within the last 3 days contributes
// 50, each matching specialization contributes 20, and a community rating of
// 4.5 or better contributes 30. A profile that does not report its last post
// earns no recency bonus.
func (s *Scorer) ApprovalScore(c models.Candidate) float64 {
	score := 0.0

	if float64(c.Karma) >= s.AutoApproveThreshold {
		score += 100
	}
	if c.DaysSinceLastPost != nil && *c.DaysSinceLastPost <= 3 {
		score += 50
	}
	score += float64(s.matchingTags(c.Specializations)) * 20
	if c.CommunityRating >= 4.5 {
		score += 30
	}

	return score
}

// FilterCandidates drops registered, low-karma and inactive candidates, keeps
// those scoring above the recruitment threshold, ranks them descending by
// score (stable, so first discovered wins ties) and truncates to the per-cycle
// batch size.
func (s *Scorer) FilterCandidates(candidates []models.Candidate, isRegistered func(string) bool, now time.Time) []ScoredCandidate {
	var qualified []ScoredCandidate

	for _, c := range candidates {
		if c.Username == "" || isRegistered(c.Username) {
			continue
		}
		if c.Karma < s.MinKarma {
			continue
		}
		// Profiles without a last-active timestamp pass the activity check
		if !c.LastActive.IsZero() && now.Sub(c.LastActive) > activityWindowDays*24*time.Hour {
			continue
		}

		score := s.RecruitmentScore(c)
		if score > qualifiedThreshold {
			qualified = append(qualified, ScoredCandidate{Candidate: c, Score: score})
		}
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].Score > qualified[j].Score
	})

	if s.MaxPerCycle > 0 && len(qualified) > s.MaxPerCycle {
		qualified = qualified[:s.MaxPerCycle]
	}
	return qualified
}
