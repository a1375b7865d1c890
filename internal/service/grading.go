package service

import (
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Grade compares answers against the answer key. Single-choice answers must
// match the option ID exactly; free-text answers ignore case and surrounding
// whitespace. Unanswered questions count as wrong.
func Grade(questions []model.QuizQuestion, answers []model.Answer) (float64, int, []model.QuestionResult) {
	given := make(map[string]string, len(answers))
	for _, a := range answers {
		given[a.QuestionID] = a.Value
	}

	correct := 0
	results := make([]model.QuestionResult, len(questions))
	for i, q := range questions {
		v, ok := given[q.ID]
		hit := ok && matches(q, v)
		if hit {
			correct++
		}
		results[i] = model.QuestionResult{QuestionID: q.ID, Correct: hit}
	}

	var score float64
	if len(questions) > 0 {
		score = float64(correct) / float64(len(questions)) * 100
	}
	return score, correct, results
}

func matches(q model.QuizQuestion, value string) bool {
	if q.QuestionType == model.QuestionTypeFreeText {
		return strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(q.CorrectAnswer))
	}
	return value == q.CorrectAnswer
}
