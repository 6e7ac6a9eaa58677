package analysis

import (
	"time"

	"github.com/edumirror/backend/internal/models"
)

// FallbackScore is the neutral score used for every dimension when the
// analysis capability cannot produce a result.
const FallbackScore = 60

// CategorySystem marks suggestions produced by the pipeline itself.
const CategorySystem = "system"

// FallbackResult is the deterministic result stored when analysis fails.
func FallbackResult(at time.Time) *models.AnalysisResult {
	return &models.AnalysisResult{
		OverallScore: FallbackScore,
		DetailedScores: models.DetailedScores{
			Expression:    FallbackScore,
			Comprehension: FallbackScore,
			Delivery:      FallbackScore,
			Engagement:    FallbackScore,
		},
		Suggestions: []models.Suggestion{{
			Category:         CategorySystem,
			Severity:         "low",
			Description:      "Automated analysis could not be completed for this session.",
			SpecificFeedback: "Scores shown are neutral defaults, not an assessment of your delivery.",
			ImprovementTip:   "Run another rehearsal to receive a full analysis.",
		}},
		Fallback:   true,
		AnalyzedAt: at.UTC(),
	}
}
