package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hirepath/assess-backend/internal/model"
	"github.com/hirepath/assess-backend/internal/sandbox"
	"github.com/hirepath/assess-backend/internal/textgen"
	"github.com/rs/zerolog"
)

// neutralScore is the fallback sub-score when subjective scoring is
// unavailable; distinguishable from a real evaluation via the Degraded flag.
const neutralScore = 50

const degradedFeedback = "Automated scoring was unavailable for this answer. A neutral score was assigned; the answer is preserved for review."

// ScoreOutcome is one question's evaluation.
type ScoreOutcome struct {
	SubScore     float64
	Feedback     string
	Degraded     bool
	ManualReview bool
}

// ScorerService evaluates submitted answers: deterministic test-case
// execution for coding questions, rubric-based text generation for
// everything else. Neither path is allowed to fail a request — every
// degradation collapses into a documented fallback outcome.
type ScorerService struct {
	runner          sandbox.Runner
	gen             textgen.Generator
	genTimeout      time.Duration
	noTestCaseScore float64
	log             zerolog.Logger
}

// NewScorerService creates a new ScorerService.
func NewScorerService(runner sandbox.Runner, gen textgen.Generator, genTimeout time.Duration, noTestCaseScore float64, log zerolog.Logger) *ScorerService {
	return &ScorerService{
		runner:          runner,
		gen:             gen,
		genTimeout:      genTimeout,
		noTestCaseScore: noTestCaseScore,
		log:             log.With().Str("component", "scorer").Logger(),
	}
}

// ScoreCoding runs the submitted code against every test case in the
// sandbox. A crash, timeout or resource blowout on one case fails that case
// only. A question with zero test cases cannot be scored mechanically: it
// gets the configured base score and is flagged for manual review.
func (s *ScorerService) ScoreCoding(ctx context.Context, q *model.Question, language, code string) ScoreOutcome {
	if len(q.TestCases) == 0 {
		return ScoreOutcome{
			SubScore:     s.noTestCaseScore,
			Feedback:     "This question has no automated test cases; it was assigned a base score and queued for manual review.",
			ManualReview: true,
		}
	}

	passed := 0
	var failures []string
	for _, tc := range q.TestCases {
		res, err := s.runner.Run(ctx, sandbox.RunSpec{
			Language: language,
			Code:     code,
			Stdin:    tc.Input,
		})
		if err != nil {
			// Sandbox infrastructure fault: the case counts as failed, never
			// as a session failure.
			s.log.Warn().Err(err).Str("question_id", q.ID.String()).Str("case", tc.Label).Msg("Sandbox run failed")
			failures = append(failures, fmt.Sprintf("%s: execution failed", tc.Label))
			continue
		}
		switch {
		case res.TimedOut:
			failures = append(failures, fmt.Sprintf("%s: time limit exceeded", tc.Label))
		case !outputMatches(res.Stdout, tc.Expected):
			failures = append(failures, fmt.Sprintf("%s: wrong output", tc.Label))
		default:
			passed++
		}
	}

	total := len(q.TestCases)
	score := RoundScore(100 * float64(passed) / float64(total))

	feedback := fmt.Sprintf("Passed %d of %d test cases.", passed, total)
	if len(failures) > 0 {
		feedback += " Failed: " + strings.Join(failures, "; ") + "."
	}

	return ScoreOutcome{SubScore: score, Feedback: feedback}
}

// ScoreOpenEnded grades a free-text answer through the rubric prompt. A
// timeout, error or unparseable response degrades to the neutral fallback
// rather than surfacing as a failure.
func (s *ScorerService) ScoreOpenEnded(ctx context.Context, q *model.Question, answer string) ScoreOutcome {
	if strings.TrimSpace(answer) == "" {
		return ScoreOutcome{
			SubScore: 0,
			Feedback: "No answer was submitted for this question.",
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	raw, err := s.gen.Generate(genCtx, textgen.BuildRubricPrompt(q.Prompt, answer, string(q.Type)))
	if err != nil {
		s.log.Warn().Err(err).Str("question_id", q.ID.String()).Msg("Rubric generation failed, degrading")
		return ScoreOutcome{SubScore: neutralScore, Feedback: degradedFeedback, Degraded: true}
	}

	res, err := textgen.ParseRubricResult(raw)
	if err != nil {
		s.log.Warn().Err(err).Str("question_id", q.ID.String()).Msg("Rubric response unparseable, degrading")
		return ScoreOutcome{SubScore: neutralScore, Feedback: degradedFeedback, Degraded: true}
	}

	return ScoreOutcome{SubScore: RoundScore(res.Score), Feedback: res.Feedback}
}

// outputMatches compares actual vs. expected program output, ignoring
// leading/trailing whitespace and normalizing line endings.
func outputMatches(actual, expected string) bool {
	norm := func(s string) string {
		s = strings.ReplaceAll(s, "\r\n", "\n")
		return strings.TrimSpace(s)
	}
	return norm(actual) == norm(expected)
}

// RoundScore rounds to the nearest integer score, bounded to [0, 100].
func RoundScore(score float64) float64 {
	r := math.Round(score)
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

// WeightedOverall aggregates per-question sub-scores into the session
// overall score. Unscored questions count as zero; a non-positive weight
// falls back to equal weighting.
func WeightedOverall(questions []model.Question) float64 {
	var sum, weights float64
	for _, q := range questions {
		w := q.Weight
		if w <= 0 {
			w = 1
		}
		weights += w
		if q.SubScore != nil {
			sum += *q.SubScore * w
		}
	}
	if weights == 0 {
		return 0
	}
	return RoundScore(sum / weights)
}
