package service

import (
	"context"
	"math/rand"
	"time"

	"github.com/hirepath/assess-backend/internal/model"
	"github.com/hirepath/assess-backend/internal/textgen"
	"github.com/rs/zerolog"
)

// ProvisionParams describes one session's question demand.
type ProvisionParams struct {
	Kind       model.AssessmentKind
	Category   model.AssessmentCategory
	Difficulty model.Difficulty
	Role       string
	Company    string
	Language   string
	Count      int
}

// BankStore is the question-bank surface provisioning needs.
type BankStore interface {
	ListByTier(ctx context.Context, kind model.AssessmentKind, category model.AssessmentCategory, difficulty model.Difficulty) ([]model.BankQuestion, error)
}

// ProvisionService assembles a session's question set: a seeded draw from the
// curated bank first, adjacent difficulty tiers when the primary tier runs
// dry, and on-demand generation for whatever is still missing. Generation
// fails closed — an invalid batch contributes nothing — and the session runs
// with a recorded shortfall rather than failing outright.
type ProvisionService struct {
	bank       BankStore
	gen        textgen.Generator
	genTimeout time.Duration
	clock      Clock
	log        zerolog.Logger
}

// NewProvisionService creates a new ProvisionService.
func NewProvisionService(bank BankStore, gen textgen.Generator, genTimeout time.Duration, clock Clock, log zerolog.Logger) *ProvisionService {
	return &ProvisionService{
		bank:       bank,
		gen:        gen,
		genTimeout: genTimeout,
		clock:      clock,
		log:        log.With().Str("component", "provisioner").Logger(),
	}
}

// adjacentTiers returns the fallback difficulty order once the requested tier
// is exhausted.
func adjacentTiers(d model.Difficulty) []model.Difficulty {
	switch d {
	case model.DifficultyEasy:
		return []model.Difficulty{model.DifficultyMedium}
	case model.DifficultyHard:
		return []model.Difficulty{model.DifficultyMedium}
	default:
		return []model.Difficulty{model.DifficultyEasy, model.DifficultyHard}
	}
}

// Provision returns up to p.Count questions with ordinals 1..N plus the
// shortfall (requested minus delivered). The draw is seeded once per call and
// the seed is logged, so a reported selection can be replayed exactly.
func (s *ProvisionService) Provision(ctx context.Context, p ProvisionParams) ([]model.Question, int, error) {
	seed := s.clock().UnixNano()
	rng := rand.New(rand.NewSource(seed))
	s.log.Info().Int64("seed", seed).
		Str("kind", string(p.Kind)).Str("category", string(p.Category)).
		Str("difficulty", string(p.Difficulty)).Int("count", p.Count).
		Msg("Provisioning questions")

	questions := make([]model.Question, 0, p.Count)

	picked, err := s.drawTier(ctx, rng, p, p.Difficulty, p.Count)
	if err != nil {
		return nil, 0, err
	}
	questions = append(questions, picked...)

	for _, tier := range adjacentTiers(p.Difficulty) {
		if len(questions) >= p.Count {
			break
		}
		picked, err := s.drawTier(ctx, rng, p, tier, p.Count-len(questions))
		if err != nil {
			return nil, 0, err
		}
		if len(picked) > 0 {
			s.log.Info().Str("fallback_tier", string(tier)).Int("picked", len(picked)).
				Msg("Primary difficulty tier exhausted, drew from adjacent tier")
		}
		questions = append(questions, picked...)
	}

	if missing := p.Count - len(questions); missing > 0 {
		generated := s.generate(ctx, p, missing)
		questions = append(questions, generated...)
	}

	for i := range questions {
		questions[i].Ordinal = i + 1
	}

	shortfall := p.Count - len(questions)
	if shortfall > 0 {
		s.log.Warn().Int("shortfall", shortfall).Int("delivered", len(questions)).
			Msg("Provisioned fewer questions than requested")
	}
	return questions, shortfall, nil
}

// drawTier samples up to n bank questions from one difficulty tier without
// replacement.
func (s *ProvisionService) drawTier(ctx context.Context, rng *rand.Rand, p ProvisionParams, tier model.Difficulty, n int) ([]model.Question, error) {
	bank, err := s.bank.ListByTier(ctx, p.Kind, p.Category, tier)
	if err != nil {
		return nil, err
	}
	if len(bank) == 0 {
		return nil, nil
	}

	perm := rng.Perm(len(bank))
	if n > len(bank) {
		n = len(bank)
	}

	out := make([]model.Question, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, fromBank(&bank[idx]))
	}
	return out, nil
}

// generate asks the text generator for the remaining questions. Any failure
// (timeout, error, malformed batch) yields zero questions; a bad element
// never slips through because batch parsing rejects the whole response.
func (s *ProvisionService) generate(ctx context.Context, p ProvisionParams, n int) []model.Question {
	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	prompt := textgen.BuildQuestionPrompt(textgen.QuestionPromptParams{
		Kind:       string(p.Kind),
		Category:   string(p.Category),
		Difficulty: string(p.Difficulty),
		Role:       p.Role,
		Company:    p.Company,
		Language:   p.Language,
		Count:      n,
	})

	raw, err := s.gen.Generate(genCtx, prompt)
	if err != nil {
		s.log.Warn().Err(err).Msg("Question generation failed")
		return nil
	}

	batch, err := textgen.ParseQuestionBatch(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("Generated question batch rejected")
		return nil
	}
	if len(batch) > n {
		batch = batch[:n]
	}

	out := make([]model.Question, 0, len(batch))
	for _, g := range batch {
		q := model.Question{
			Prompt:     g.Prompt,
			Type:       model.QuestionType(g.Type),
			Difficulty: p.Difficulty,
			Weight:     1,
			Hints:      g.Hints,
		}
		for _, tc := range g.TestCases {
			q.TestCases = append(q.TestCases, model.TestCase{Label: tc.Label, Input: tc.Input, Expected: tc.Expected})
		}
		out = append(out, q)
	}
	return out
}

// fromBank copies a bank question into a session-owned question. The bank row
// stays untouched; sessions never share question rows.
func fromBank(b *model.BankQuestion) model.Question {
	weight := b.Weight
	if weight <= 0 {
		weight = 1
	}
	return model.Question{
		Prompt:     b.Prompt,
		Type:       b.Type,
		Difficulty: b.Difficulty,
		Weight:     weight,
		TestCases:  b.TestCases,
		Hints:      b.Hints,
	}
}
