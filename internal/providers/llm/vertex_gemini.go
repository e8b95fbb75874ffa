package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"

	"github.com/adminlove520/EasyJob/internal/models"
)

type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	return &VertexGemini{client: c, model: m}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := v.model.GenerateContent(ctx, vertexgenai.Text(prompt))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	out := b.String()
	if out == "" {
		return "", errors.New("llm: empty response")
	}
	return out, nil
}

func (v *VertexGemini) GenerateQuestions(ctx context.Context, resumeContent json.RawMessage, jdContent string, mode string, count int) ([]models.QuestionRecord, error) {
	if count <= 0 {
		count = 10
	}
	if mode == "" {
		mode = "comprehensive"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a senior interviewer. Generate exactly %d %s interview questions for the candidate below.\n", count, mode)
	b.WriteString("Return a JSON array only, each element: {\"question\": string, \"type\": \"general\"|\"technical\"|\"behavioral\"}.\n\n")
	b.WriteString("Resume (JSON):\n")
	b.Write(resumeContent)
	if jdContent != "" {
		b.WriteString("\n\nJob description:\n")
		b.WriteString(jdContent)
	}

	raw, err := v.generate(ctx, b.String())
	if err != nil {
		return nil, err
	}

	questions, err := parseQuestionList(raw)
	if err != nil {
		return nil, err
	}
	if len(questions) > count {
		questions = questions[:count]
	}
	for i := range questions {
		questions[i].Index = i
		if questions[i].Type == "" {
			questions[i].Type = "general"
		}
	}
	return questions, nil
}

func (v *VertexGemini) NextQuestion(ctx context.Context, history []Exchange, resumeContent json.RawMessage) (models.QuestionRecord, error) {
	var b strings.Builder
	b.WriteString("You are a senior interviewer. Based on the conversation so far, ask ONE natural follow-up interview question.\n")
	b.WriteString("Return JSON only: {\"question\": string, \"type\": \"follow_up\"}.\n\nConversation:\n")
	for _, ex := range history {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", ex.Question, ex.Answer)
	}
	b.WriteString("\nResume (JSON):\n")
	b.Write(resumeContent)

	raw, err := v.generate(ctx, b.String())
	if err != nil {
		return models.QuestionRecord{}, err
	}

	var q models.QuestionRecord
	if err := json.Unmarshal([]byte(stripFences(raw)), &q); err != nil || q.Question == "" {
		// Fall back to the raw text as the question itself.
		q = models.QuestionRecord{Question: strings.TrimSpace(stripFences(raw))}
	}
	if q.Type == "" {
		q.Type = "follow_up"
	}
	return q, nil
}

func (v *VertexGemini) EvaluateAnswer(ctx context.Context, question, answer string, resumeContent json.RawMessage) (models.Evaluation, error) {
	var b strings.Builder
	b.WriteString("You are a strict but encouraging interviewer. Evaluate the candidate's answer.\n")
	b.WriteString("Return JSON only: {\"score\": 0-100, \"feedback\": string, \"suggestions\": [string]}.\n")
	b.WriteString("End the feedback by asking the candidate the next question naturally.\n\n")
	fmt.Fprintf(&b, "Question: %s\nAnswer: %s\n\nResume (JSON):\n", question, answer)
	b.Write(resumeContent)

	raw, err := v.generate(ctx, b.String())
	if err != nil {
		return models.Evaluation{}, err
	}
	return parseEvaluation(raw), nil
}

func (v *VertexGemini) OverallScore(ctx context.Context, questions []models.QuestionRecord, answers []models.AnswerRecord) (int, error) {
	if len(answers) == 0 {
		return 0, errors.New("llm: no answers to score")
	}

	var b strings.Builder
	b.WriteString("Rate the whole interview below with a single overall score from 0 to 100. Reply with the number only.\n\n")
	for _, a := range answers {
		if a.QuestionIndex < len(questions) {
			fmt.Fprintf(&b, "Q: %s\n", questions[a.QuestionIndex].Question)
		}
		fmt.Fprintf(&b, "A: %s (per-question score %d)\n", a.Answer, a.Evaluation.Score)
	}

	raw, err := v.generate(ctx, b.String())
	if err != nil {
		return 0, err
	}

	score := extractScore(raw)
	if score == 0 {
		// Fall back to the mean of per-question scores.
		sum := 0
		for _, a := range answers {
			sum += a.Evaluation.Score
		}
		score = sum / len(answers)
	}
	return score, nil
}

func (v *VertexGemini) StreamAnswer(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		it := v.model.GenerateContentStream(ctx, vertexgenai.Text(prompt))
		for {
			resp, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				errs <- err
				return
			}

			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if t, ok := part.(vertexgenai.Text); ok && string(t) != "" {
						out <- string(t)
					}
				}
			}
		}
	}()

	return out, errs
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// stripFences unwraps a ```json ...``` block when the model ignores the
// "JSON only" instruction.
func stripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return strings.TrimSpace(s)
}

func parseQuestionList(raw string) ([]models.QuestionRecord, error) {
	cleaned := stripFences(raw)

	var questions []models.QuestionRecord
	if err := json.Unmarshal([]byte(cleaned), &questions); err == nil && len(questions) > 0 {
		return questions, nil
	}

	// Salvage a JSON array embedded in surrounding prose.
	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &questions); err == nil && len(questions) > 0 {
			return questions, nil
		}
	}
	return nil, fmt.Errorf("llm: unparseable question list: %.120s", raw)
}

func parseEvaluation(raw string) models.Evaluation {
	cleaned := stripFences(raw)

	var eval models.Evaluation
	if err := json.Unmarshal([]byte(cleaned), &eval); err == nil && eval.Feedback != "" {
		return eval
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &eval); err == nil && eval.Feedback != "" {
			return eval
		}
	}

	// Last resort: whole response as feedback, score scraped from the text.
	return models.Evaluation{
		Score:    extractScore(cleaned),
		Feedback: strings.TrimSpace(cleaned),
	}
}

var scoreRe = regexp.MustCompile(`\b(100|[1-9]?[0-9])\b`)

func extractScore(s string) int {
	m := scoreRe.FindString(s)
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(m)
	return n
}
