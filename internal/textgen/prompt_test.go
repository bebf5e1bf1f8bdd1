package textgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuestionBatch(t *testing.T) {
	t.Run("valid batch", func(t *testing.T) {
		raw := `[
			{"question": "Reverse a string", "type": "CODING",
			 "test_cases": [{"label": "t1", "input": "ab", "expected": "ba"}]},
			{"question": "Explain CAP", "type": "SHORT_ANSWER"}
		]`
		batch, err := ParseQuestionBatch(raw)
		require.NoError(t, err)
		require.Len(t, batch, 2)
		assert.Equal(t, "Reverse a string", batch[0].Prompt)
		assert.Equal(t, "ba", batch[0].TestCases[0].Expected)
	})

	t.Run("markdown fenced", func(t *testing.T) {
		raw := "Sure! Here you go:\n```json\n[{\"question\": \"Explain CAP\", \"type\": \"SHORT_ANSWER\"}]\n```"
		batch, err := ParseQuestionBatch(raw)
		require.NoError(t, err)
		require.Len(t, batch, 1)
	})

	t.Run("coding without test cases rejects whole batch", func(t *testing.T) {
		raw := `[
			{"question": "fine", "type": "SHORT_ANSWER"},
			{"question": "broken", "type": "CODING", "test_cases": []}
		]`
		_, err := ParseQuestionBatch(raw)
		assert.Error(t, err)
	})

	t.Run("test case without expected output rejects batch", func(t *testing.T) {
		raw := `[{"question": "q", "type": "CODING",
			"test_cases": [{"label": "t1", "input": "x", "expected": ""}]}]`
		_, err := ParseQuestionBatch(raw)
		assert.Error(t, err)
	})

	t.Run("empty prompt rejects batch", func(t *testing.T) {
		raw := `[{"question": "  ", "type": "SHORT_ANSWER"}]`
		_, err := ParseQuestionBatch(raw)
		assert.Error(t, err)
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, err := ParseQuestionBatch("I can't help with that.")
		assert.Error(t, err)
	})

	t.Run("empty array", func(t *testing.T) {
		_, err := ParseQuestionBatch("[]")
		assert.Error(t, err)
	})
}

func TestParseRubricResult(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		res, err := ParseRubricResult(`{"score": 74, "feedback": "Good depth."}`)
		require.NoError(t, err)
		assert.Equal(t, float64(74), res.Score)
		assert.Equal(t, "Good depth.", res.Feedback)
	})

	t.Run("clamps out-of-range scores", func(t *testing.T) {
		res, err := ParseRubricResult(`{"score": 130, "feedback": "Excellent."}`)
		require.NoError(t, err)
		assert.Equal(t, float64(100), res.Score)

		res, err = ParseRubricResult(`{"score": -10, "feedback": "Off topic."}`)
		require.NoError(t, err)
		assert.Equal(t, float64(0), res.Score)
	})

	t.Run("missing feedback is an error", func(t *testing.T) {
		_, err := ParseRubricResult(`{"score": 50, "feedback": ""}`)
		assert.Error(t, err)
	})

	t.Run("prose around JSON", func(t *testing.T) {
		res, err := ParseRubricResult("Here is my assessment: {\"score\": 60, \"feedback\": \"Shallow.\"} Hope that helps!")
		require.NoError(t, err)
		assert.Equal(t, float64(60), res.Score)
	})
}

func TestBuildQuestionPromptIncludesConstraints(t *testing.T) {
	p := BuildQuestionPrompt(QuestionPromptParams{
		Kind:       "SKILLS_TEST",
		Category:   "TECHNICAL",
		Difficulty: "HARD",
		Role:       "Backend Engineer",
		Language:   "python",
		Count:      3,
	})
	assert.Contains(t, p, "exactly 3")
	assert.Contains(t, p, "Backend Engineer")
	assert.Contains(t, p, "python")
	assert.Contains(t, p, "JSON array only")
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("prefix {\"a\":1} suffix"))
	assert.Equal(t, `[1,2]`, extractJSON("```json\n[1,2]\n```"))
	assert.Equal(t, "", extractJSON("no payload here"))
}
