package grading

import "math"

// QuestionOutcome is the latest submitted result for one question of an assessment.
type QuestionOutcome struct {
	QuestionID      uint
	Status          string
	PassedTests     int
	TotalTests      int
	ExecutionTimeMs int64
	Code            string
}

// ReviewItem is one line of an assessment review.
type ReviewItem struct {
	QuestionID      uint   `json:"questionId"`
	Status          string `json:"status"`
	PassedTests     int    `json:"passedTests"`
	TotalTests      int    `json:"totalTests"`
	EarnedPoints    int    `json:"earnedPoints"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	Code            string `json:"code"`
}

// Review is the assessment-level report built at completion.
type Review struct {
	Items          []ReviewItem `json:"items"`
	TotalScore     int          `json:"totalScore"`
	CompletedCount int          `json:"completedCount"`
	AcceptedCount  int          `json:"acceptedCount"`
	TotalQuestions int          `json:"totalQuestions"`
	AvgExecMs      int64        `json:"avgExecMs"`
}

// PointsPerQuestion is the equal weight of a question: round(100/total).
func PointsPerQuestion(totalQuestions int) int {
	if totalQuestions <= 0 {
		return 0
	}
	return int(math.Round(100 / float64(totalQuestions)))
}

// BuildReview scores an assessment. Every question is worth PointsPerQuestion and
// earns it only when its latest status is accepted; partially passing questions earn
// nothing. The average execution time covers every attempted question. The total is
// capped at 100 because rounding can push the equal weights above it.
func BuildReview(questionIDs []uint, latest map[uint]QuestionOutcome) Review {
	points := PointsPerQuestion(len(questionIDs))
	review := Review{
		Items:          make([]ReviewItem, 0, len(questionIDs)),
		TotalQuestions: len(questionIDs),
	}

	var execTotal int64
	for _, questionID := range questionIDs {
		outcome, attempted := latest[questionID]
		item := ReviewItem{QuestionID: questionID, Status: StatusNotAttempted}

		if attempted {
			item.Status = outcome.Status
			item.PassedTests = outcome.PassedTests
			item.TotalTests = outcome.TotalTests
			item.ExecutionTimeMs = outcome.ExecutionTimeMs
			item.Code = outcome.Code

			review.CompletedCount++
			execTotal += outcome.ExecutionTimeMs

			if outcome.Status == StatusAccepted {
				item.EarnedPoints = points
				review.AcceptedCount++
				review.TotalScore += points
			}
		}

		review.Items = append(review.Items, item)
	}

	// Six accepted questions at round(100/6) = 17 points each sum to 102; scores stay within 0..100.
	if review.TotalScore > 100 {
		review.TotalScore = 100
	}
	if review.CompletedCount > 0 {
		review.AvgExecMs = int64(math.Round(float64(execTotal) / float64(review.CompletedCount)))
	}

	return review
}
