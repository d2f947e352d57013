package grading

import "math"

// Score aggregates the results of one run.
type Score struct {
	PassedTests     int    `json:"passedTests"`
	TotalTests      int    `json:"totalTests"`
	Percentage      int    `json:"score"`
	Status          string `json:"status"`
	EarnedMarks     int    `json:"earnedMarks"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
}

// Aggregate counts passed test cases and derives the percentage score and verdict.
func Aggregate(results []Result) Score {
	score := Score{TotalTests: len(results), Status: StatusWrongAnswer}

	var elapsed int64
	for _, result := range results {
		elapsed += result.ExecutionTime
		if result.Passed {
			score.PassedTests++
			score.EarnedMarks += result.Marks
		}
	}

	if score.TotalTests > 0 {
		score.Percentage = Percentage(score.PassedTests, score.TotalTests)
		score.ExecutionTimeMs = int64(math.Round(float64(elapsed) / float64(score.TotalTests)))
		if score.PassedTests == score.TotalTests {
			score.Status = StatusAccepted
		}
	}

	return score
}

// Percentage returns round(100*passed/total), or 0 when total is zero.
func Percentage(passed, total int) int {
	if total <= 0 {
		return 0
	}
	if passed < 0 {
		passed = 0
	}
	if passed > total {
		passed = total
	}
	return int(math.Round(100 * float64(passed) / float64(total)))
}
