package arena

import (
	"fmt"
	"math"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// MaxQuestionsPerSession bounds totalQuestions in a single submission.
const MaxQuestionsPerSession = 200

// SessionSubmission is the untrusted, client-reported outcome of one arena session.
type SessionSubmission struct {
	Level              Level    `json:"level"`
	Score              uint64   `json:"score"`
	XPEarnedClaim      uint64   `json:"xpEarned"`
	CorrectQuestionIDs []string `json:"correctQuestionIds"`
	TotalQuestions     uint32   `json:"totalQuestions"`
	// Duration is the session length in seconds.
	Duration      float64  `json:"duration"`
	BestStreak    uint32   `json:"bestStreak"`
	FastestAnswer *float64 `json:"fastestAnswer,omitempty"`
}

// Validate checks the submission shape. It does not judge plausibility.
func (s SessionSubmission) Validate() error {
	if !s.Level.IsValid() {
		return shared.WrapError("arena", "Validate", shared.ErrValidation, "invalid level", fmt.Errorf("%q", s.Level))
	}
	if s.TotalQuestions == 0 || s.TotalQuestions > MaxQuestionsPerSession {
		return shared.WrapError("arena", "Validate", shared.ErrValidation, "totalQuestions out of range",
			fmt.Errorf("got %d, want 1..%d", s.TotalQuestions, MaxQuestionsPerSession))
	}
	if math.IsNaN(s.Duration) || math.IsInf(s.Duration, 0) || s.Duration < 0 {
		return shared.WrapError("arena", "Validate", shared.ErrValidation, "duration must be a non-negative number", nil)
	}
	for _, id := range s.CorrectQuestionIDs {
		if id == "" {
			return shared.WrapError("arena", "Validate", shared.ErrValidation, "empty challenge id", nil)
		}
	}
	if n := len(s.Claimed()); n > int(s.TotalQuestions) {
		return shared.WrapError("arena", "Validate", shared.ErrValidation, "more correct answers than questions",
			fmt.Errorf("%d > %d", n, s.TotalQuestions))
	}
	if s.BestStreak > s.TotalQuestions {
		return shared.WrapError("arena", "Validate", shared.ErrValidation, "bestStreak exceeds totalQuestions", nil)
	}
	if s.FastestAnswer != nil && (*s.FastestAnswer < 0 || *s.FastestAnswer > s.Duration) {
		return shared.WrapError("arena", "Validate", shared.ErrValidation, "fastestAnswer out of range", nil)
	}
	return nil
}

// Claimed returns the claimed correct challenge ids as a set.
func (s SessionSubmission) Claimed() IDSet {
	return NewIDSet(s.CorrectQuestionIDs...)
}

// CorrectCount is the number of distinct claimed correct answers.
func (s SessionSubmission) CorrectCount() int {
	return s.Claimed().Len()
}
