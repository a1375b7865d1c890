package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

func writeEnvelope(w http.ResponseWriter, status int, data interface{}, code response.ErrCode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := response.Response{Data: data}
	if code != "" {
		body.Error = &response.ErrorBody{Code: code, Message: response.GetMessage(code)}
	}
	_ = json.NewEncoder(w).Encode(body)
}

func TestHTTPStartOrResume(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/student/quizzes/quiz-1/attempts" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if r.Header.Get(response.HeaderRequestID) == "" {
			t.Error("missing request id")
		}
		writeEnvelope(w, http.StatusOK, model.AttemptSession{
			AttemptID: "att-1",
			QuizID:    "quiz-1",
			Questions: model.QuestionSet{{ID: "q1", QuestionType: model.QuestionTypeFreeText}},
			Seconds:   600,
			IsResume:  true,
		}, "")
	}))
	defer srv.Close()

	gw := NewHTTP(srv.URL+"/", StaticToken("secret"))
	sess, err := gw.StartOrResume(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.AttemptID != "att-1" || !sess.IsResume || sess.Seconds != 600 || len(sess.Questions) != 1 {
		t.Fatalf("session = %+v", sess)
	}
}

func TestHTTPSubmitSendsPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/student/attempts/att-1/submit" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req model.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if !req.Auto || req.Reason != model.ReasonTimeExpired || len(req.Answers) != 1 {
			t.Errorf("request = %+v", req)
		}
		writeEnvelope(w, http.StatusOK, model.SubmissionResult{AttemptID: "att-1", Score: 100, Correct: 1, Total: 1}, "")
	}))
	defer srv.Close()

	gw := NewHTTP(srv.URL, StaticToken("secret"))
	res, err := gw.Submit(context.Background(), model.SubmitRequest{
		AttemptID: "att-1",
		Answers:   []model.Answer{{QuestionID: "q1", Value: "A"}},
		Auto:      true,
		Reason:    model.ReasonTimeExpired,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 100 {
		t.Fatalf("score = %v", res.Score)
	}
}

func TestHTTPAutosaveSendsDraft(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/student/attempts/att-1/answers" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req model.AutosaveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.AttemptID != "att-1" || len(req.Answers) != 2 {
			t.Errorf("request = %+v", req)
		}
		writeEnvelope(w, http.StatusOK, map[string]int{"saved": len(req.Answers)}, "")
	}))
	defer srv.Close()

	gw := NewHTTP(srv.URL, StaticToken("secret"))
	err := gw.Autosave(context.Background(), model.AutosaveRequest{
		AttemptID: "att-1",
		Answers:   []model.Answer{{QuestionID: "q1", Value: "A"}, {QuestionID: "q2", Value: "B"}},
	})
	if err != nil {
		t.Fatalf("autosave: %v", err)
	}
}

func TestHTTPMapsRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		code   response.ErrCode
		want   error
	}{
		{http.StatusConflict, response.ErrAlreadySubmitted, ErrAlreadySubmitted},
		{http.StatusUnauthorized, response.ErrTokenInvalid, ErrUnauthorized},
		{http.StatusGone, response.ErrAttemptExpired, ErrAttemptExpired},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, tt.status, nil, tt.code)
		}))
		_, err := NewHTTP(srv.URL, StaticToken("t")).StartOrResume(context.Background(), "quiz-1")
		srv.Close()
		if !errors.Is(err, tt.want) {
			t.Fatalf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestHTTPServerFailureIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, StaticToken("t")).Submit(context.Background(), model.SubmitRequest{AttemptID: "a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsFatal(err) {
		t.Fatalf("502 must be transient, got %v", err)
	}
}
