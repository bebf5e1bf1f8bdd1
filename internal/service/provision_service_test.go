package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hirepath/assess-backend/internal/model"
	"github.com/hirepath/assess-backend/internal/textgen"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBank struct {
	tiers map[model.Difficulty][]model.BankQuestion
	err   error
}

func (b *fakeBank) ListByTier(_ context.Context, _ model.AssessmentKind, _ model.AssessmentCategory, d model.Difficulty) ([]model.BankQuestion, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tiers[d], nil
}

func bankOf(d model.Difficulty, n int) []model.BankQuestion {
	out := make([]model.BankQuestion, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.BankQuestion{
			Difficulty: d,
			Type:       model.QuestionTypeShortAnswer,
			Prompt:     fmt.Sprintf("%s question %d", d, i),
			Weight:     1,
		})
	}
	return out
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func failingGen() textgen.Generator {
	return textgen.GeneratorFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("not configured")
	})
}

func TestProvisionSeededDraw(t *testing.T) {
	bank := &fakeBank{tiers: map[model.Difficulty][]model.BankQuestion{
		model.DifficultyMedium: bankOf(model.DifficultyMedium, 12),
	}}
	clock := fixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	params := ProvisionParams{
		Kind:       model.KindSkillsTest,
		Category:   model.CategoryTechnical,
		Difficulty: model.DifficultyMedium,
		Count:      4,
	}

	svc := NewProvisionService(bank, failingGen(), time.Second, clock, zerolog.Nop())

	first, shortfall, err := svc.Provision(context.Background(), params)
	require.NoError(t, err)
	assert.Zero(t, shortfall)
	require.Len(t, first, 4)

	// Same clock means same seed means same selection.
	second, _, err := svc.Provision(context.Background(), params)
	require.NoError(t, err)
	for i := range first {
		assert.Equal(t, first[i].Prompt, second[i].Prompt)
	}

	// No duplicates within a draw.
	seen := map[string]bool{}
	for _, q := range first {
		assert.False(t, seen[q.Prompt], "question drawn twice: %s", q.Prompt)
		seen[q.Prompt] = true
	}

	// Ordinals are assigned 1..N.
	for i, q := range first {
		assert.Equal(t, i+1, q.Ordinal)
	}
}

func TestProvisionAdjacentTierFallback(t *testing.T) {
	bank := &fakeBank{tiers: map[model.Difficulty][]model.BankQuestion{
		model.DifficultyHard:   bankOf(model.DifficultyHard, 2),
		model.DifficultyMedium: bankOf(model.DifficultyMedium, 10),
	}}
	svc := NewProvisionService(bank, failingGen(), time.Second, fixedClock(time.Now()), zerolog.Nop())

	questions, shortfall, err := svc.Provision(context.Background(), ProvisionParams{
		Kind:       model.KindSkillsTest,
		Category:   model.CategoryTechnical,
		Difficulty: model.DifficultyHard,
		Count:      5,
	})
	require.NoError(t, err)
	assert.Zero(t, shortfall)
	require.Len(t, questions, 5)

	hard, medium := 0, 0
	for _, q := range questions {
		switch q.Difficulty {
		case model.DifficultyHard:
			hard++
		case model.DifficultyMedium:
			medium++
		}
	}
	assert.Equal(t, 2, hard, "primary tier should be exhausted first")
	assert.Equal(t, 3, medium)
}

func TestProvisionGeneratorFillsRemainder(t *testing.T) {
	bank := &fakeBank{tiers: map[model.Difficulty][]model.BankQuestion{}}
	gen := textgen.GeneratorFunc(func(_ context.Context, _ string) (string, error) {
		return `[
			{"question": "Reverse a string", "type": "CODING",
			 "test_cases": [{"label": "t1", "input": "ab", "expected": "ba"}],
			 "hints": ["two pointers"]},
			{"question": "Describe a hard bug you fixed", "type": "BEHAVIORAL"}
		]`, nil
	})
	svc := NewProvisionService(bank, gen, time.Second, fixedClock(time.Now()), zerolog.Nop())

	questions, shortfall, err := svc.Provision(context.Background(), ProvisionParams{
		Kind:       model.KindMockInterview,
		Category:   model.CategoryMixed,
		Difficulty: model.DifficultyEasy,
		Count:      2,
	})
	require.NoError(t, err)
	assert.Zero(t, shortfall)
	require.Len(t, questions, 2)

	assert.Equal(t, model.QuestionTypeCoding, questions[0].Type)
	require.Len(t, questions[0].TestCases, 1)
	assert.Equal(t, "ba", questions[0].TestCases[0].Expected)
	assert.Equal(t, 1, questions[0].Ordinal)
	assert.Equal(t, 2, questions[1].Ordinal)
}

func TestProvisionGenerationFailsClosed(t *testing.T) {
	bank := &fakeBank{tiers: map[model.Difficulty][]model.BankQuestion{
		model.DifficultyEasy: bankOf(model.DifficultyEasy, 2),
	}}
	// One valid element plus one invalid element rejects the whole batch.
	gen := textgen.GeneratorFunc(func(_ context.Context, _ string) (string, error) {
		return `[
			{"question": "ok", "type": "SHORT_ANSWER"},
			{"question": "broken coding", "type": "CODING", "test_cases": []}
		]`, nil
	})
	svc := NewProvisionService(bank, gen, time.Second, fixedClock(time.Now()), zerolog.Nop())

	questions, shortfall, err := svc.Provision(context.Background(), ProvisionParams{
		Kind:       model.KindSkillsTest,
		Category:   model.CategoryTechnical,
		Difficulty: model.DifficultyEasy,
		Count:      5,
	})
	require.NoError(t, err)
	assert.Len(t, questions, 2, "only bank questions should survive")
	assert.Equal(t, 3, shortfall)
}

func TestProvisionBankErrorPropagates(t *testing.T) {
	bank := &fakeBank{err: errors.New("db down")}
	svc := NewProvisionService(bank, failingGen(), time.Second, fixedClock(time.Now()), zerolog.Nop())

	_, _, err := svc.Provision(context.Background(), ProvisionParams{
		Kind:       model.KindSkillsTest,
		Category:   model.CategoryTechnical,
		Difficulty: model.DifficultyEasy,
		Count:      3,
	})
	assert.Error(t, err)
}
