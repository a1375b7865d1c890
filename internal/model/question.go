package model

// QuestionType enumerates the kinds of question an attempt can contain.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeFreeText     QuestionType = "FREE_TEXT"
)

// Option is one selectable answer of a single-choice question.
type Option struct {
	ID   string `json:"id" binding:"required,max=64"`
	Text string `json:"text" binding:"required"`
}

// Question is a question as delivered to the student (no correct answer).
type Question struct {
	ID           string       `json:"id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Options      []Option     `json:"options,omitempty"`
	OrderNum     int          `json:"order_num"`
}

// HasOption reports whether id is one of the question's options.
func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// QuestionSet is the ordered, immutable list of questions of one attempt.
type QuestionSet []Question

// Find returns the question with the given ID.
func (s QuestionSet) Find(id string) (Question, bool) {
	for _, q := range s {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Contains reports whether the set has a question with the given ID.
func (s QuestionSet) Contains(id string) bool {
	_, ok := s.Find(id)
	return ok
}
