package textgen

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// QuestionPromptParams parameterizes on-demand question generation.
type QuestionPromptParams struct {
	Kind       string
	Category   string
	Difficulty string
	Role       string
	Company    string
	Language   string
	Count      int
}

// GeneratedTestCase mirrors the test-case shape the generator must return
// for coding questions.
type GeneratedTestCase struct {
	Label    string `json:"label"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// GeneratedQuestion is the validated shape of one generator-produced
// question.
type GeneratedQuestion struct {
	Prompt       string              `json:"question"`
	Type         string              `json:"type"`
	Hints        []string            `json:"hints"`
	TestCases    []GeneratedTestCase `json:"test_cases"`
	SampleAnswer string              `json:"sample_answer"`
}

// BuildQuestionPrompt renders the structured question-generation prompt.
func BuildQuestionPrompt(p QuestionPromptParams) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate exactly %d %s interview assessment questions.\n", p.Count, strings.ToLower(p.Category))
	fmt.Fprintf(&sb, "Assessment kind: %s. Difficulty: %s.\n", p.Kind, p.Difficulty)
	if p.Role != "" {
		fmt.Fprintf(&sb, "Target role: %s.\n", p.Role)
	}
	if p.Company != "" {
		fmt.Fprintf(&sb, "Target company: %s.\n", p.Company)
	}
	if p.Language != "" {
		fmt.Fprintf(&sb, "Programming language for coding questions: %s.\n", p.Language)
	}
	sb.WriteString(`
Respond with a JSON array only, no prose. Each element:
{
  "question": "<prompt text>",
  "type": "CODING" | "SHORT_ANSWER" | "LONG_ANSWER" | "BEHAVIORAL" | "SYSTEM_DESIGN",
  "hints": ["<hint>", ...],
  "test_cases": [{"label": "<name>", "input": "<stdin>", "expected": "<stdout>"}],
  "sample_answer": "<model answer>"
}
Coding questions must include at least two test cases; other types use an empty test_cases array.`)
	return sb.String()
}

// ParseQuestionBatch validates a generator response into questions. It fails
// closed: any malformed or incomplete element rejects the entire batch, so a
// partially-validated response never reaches provisioning.
func ParseQuestionBatch(raw string) ([]GeneratedQuestion, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, errors.New("no JSON payload in response")
	}

	var batch []GeneratedQuestion
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		return nil, fmt.Errorf("decode question batch: %w", err)
	}
	if len(batch) == 0 {
		return nil, errors.New("empty question batch")
	}

	for i, q := range batch {
		if strings.TrimSpace(q.Prompt) == "" {
			return nil, fmt.Errorf("question %d: empty prompt", i)
		}
		if strings.TrimSpace(q.Type) == "" {
			return nil, fmt.Errorf("question %d: missing type", i)
		}
		if q.Type == "CODING" {
			if len(q.TestCases) == 0 {
				return nil, fmt.Errorf("question %d: coding question without test cases", i)
			}
			for j, tc := range q.TestCases {
				if strings.TrimSpace(tc.Expected) == "" {
					return nil, fmt.Errorf("question %d: test case %d has no expected output", i, j)
				}
			}
		}
	}
	return batch, nil
}

// BuildRubricPrompt renders the subjective-scoring prompt for one answer.
func BuildRubricPrompt(question, answer, qtype string) string {
	var sb strings.Builder
	sb.WriteString("You are grading one answer from a timed assessment.\n\n")
	fmt.Fprintf(&sb, "Question (%s):\n%s\n\n", qtype, question)
	fmt.Fprintf(&sb, "Candidate answer:\n%s\n\n", answer)
	sb.WriteString(`Score the answer for correctness, depth and clarity.
Respond with JSON only: {"score": <integer 0-100>, "feedback": "<2-4 sentences of specific feedback>"}`)
	return sb.String()
}

// RubricResult is the parsed outcome of a rubric prompt.
type RubricResult struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// ParseRubricResult extracts and bounds a rubric response.
func ParseRubricResult(raw string) (RubricResult, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return RubricResult{}, errors.New("no JSON payload in response")
	}

	var res RubricResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return RubricResult{}, fmt.Errorf("decode rubric result: %w", err)
	}
	if strings.TrimSpace(res.Feedback) == "" {
		return RubricResult{}, errors.New("rubric result missing feedback")
	}
	if res.Score < 0 {
		res.Score = 0
	}
	if res.Score > 100 {
		res.Score = 100
	}
	return res, nil
}

// BuildOverallFeedbackPrompt renders the end-of-session feedback prompt.
func BuildOverallFeedbackPrompt(kind, role string, overallScore float64, subScores []float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A candidate finished a %s", strings.ToLower(strings.ReplaceAll(kind, "_", " ")))
	if role != "" {
		fmt.Fprintf(&sb, " for a %s role", role)
	}
	fmt.Fprintf(&sb, " scoring %.0f/100 overall.\n", overallScore)
	sb.WriteString("Per-question scores: ")
	for i, s := range subScores {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%.0f", s)
	}
	sb.WriteString(".\nWrite 3-5 sentences of overall feedback: strongest areas, weakest areas, and one concrete next step. Plain text only.")
	return sb.String()
}

// extractJSON pulls the first JSON object or array out of a completion,
// tolerating markdown code fences and surrounding prose.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	objStart := strings.IndexAny(s, "[{")
	if objStart < 0 {
		return ""
	}
	var closer byte
	if s[objStart] == '[' {
		closer = ']'
	} else {
		closer = '}'
	}
	objEnd := strings.LastIndexByte(s, closer)
	if objEnd <= objStart {
		return ""
	}
	return s[objStart : objEnd+1]
}
