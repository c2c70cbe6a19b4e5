//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080/api/v1"
	studentID      = "e2e_hs@example.edu.vn"
	teacherID      = "e2e_gv@example.edu.vn"
	e2eGrade       = 12
)

var (
	baseURL      string
	studentToken string
	teacherToken string
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	if err := setup(); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func setup() error {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	tables := []string{"attempt_answers", "quiz_violations", "quiz_results", "exam_variant_questions", "exam_variants"}
	for _, table := range tables {
		if _, err := conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("cleanup %s: %w", table, err)
		}
	}
	if _, err := conn.Exec(ctx, `DELETE FROM questions WHERE id LIKE 'E2E-%'`); err != nil {
		return fmt.Errorf("cleanup questions: %w", err)
	}

	seed := []struct{ id, qtype, key string }{
		{"E2E-1", string(model.QuestionTypeMultipleChoice), "A"},
		{"E2E-2", string(model.QuestionTypeMultipleChoice), "B"},
		{"E2E-3", string(model.QuestionTypeShortAnswer), "2.5"},
	}
	for _, q := range seed {
		_, err := conn.Exec(ctx,
			`INSERT INTO questions (id, grade, topic, level, question_type, question_text, option_a, option_b, option_c, option_d, answer_key)
			 VALUES ($1, $2, 'E2E Hàm số', $3, $4, 'Câu hỏi kiểm thử', '1', '2', '3', '4', $5)`,
			q.id, e2eGrade, string(model.LevelRecall), q.qtype, q.key)
		if err != nil {
			return fmt.Errorf("insert question %s: %w", q.id, err)
		}
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	// The server caches pools per grade.
	if err := rdb.Del(ctx, config.CacheKey.GradeQuestionsKey(e2eGrade)).Err(); err != nil {
		return fmt.Errorf("drop pool cache: %w", err)
	}

	auth := service.NewAuthService(cfg, rdb)
	if studentToken, _, err = auth.IssueToken(ctx, studentID, "Học sinh E2E", model.RoleStudent, "e2e-device"); err != nil {
		return fmt.Errorf("issue student token: %w", err)
	}
	if teacherToken, _, err = auth.IssueToken(ctx, teacherID, "Giáo viên E2E", model.RoleTeacher, "e2e-device"); err != nil {
		return fmt.Errorf("issue teacher token: %w", err)
	}
	return nil
}

type envelope[T any] struct {
	Data T `json:"data"`
}

func TestPracticeFlow(t *testing.T) {
	var attemptID string

	t.Run("Start", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/student/quizzes", studentToken, model.StartQuizRequest{
			Grade: e2eGrade, Topic: "E2E Hàm số", Level: string(model.LevelRecall),
		})
		expectStatus(t, resp, http.StatusCreated)

		var body envelope[struct {
			Attempt model.AttemptSnapshot `json:"attempt"`
		}]
		decodeJSON(t, resp, &body)
		if len(body.Data.Attempt.Questions) != 3 {
			t.Fatalf("got %d questions, want 3", len(body.Data.Attempt.Questions))
		}
		if !body.Data.Attempt.AntiCheatEnabled {
			t.Error("anti-cheat disabled for student")
		}
		attemptID = body.Data.Attempt.ID.String()
	})

	t.Run("Answer", func(t *testing.T) {
		for i, v := range []string{"A", "C", "2.5"} {
			resp := do(t, http.MethodPut, fmt.Sprintf("/student/attempts/%s/answers/%d", attemptID, i), studentToken,
				model.SelectAnswerRequest{Value: v})
			expectStatus(t, resp, http.StatusOK)
			resp.Body.Close()
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		resp := do(t, http.MethodPut, fmt.Sprintf("/student/attempts/%s/answers/9", attemptID), studentToken,
			model.SelectAnswerRequest{Value: "A"})
		expectStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	})

	t.Run("Finish", func(t *testing.T) {
		resp := do(t, http.MethodPost, fmt.Sprintf("/student/attempts/%s/finish", attemptID), studentToken, nil)
		expectStatus(t, resp, http.StatusOK)

		var body envelope[struct {
			Result model.QuizResult `json:"result"`
		}]
		decodeJSON(t, resp, &body)
		if body.Data.Result.Score != 2 || body.Data.Result.TotalQuestions != 3 {
			t.Fatalf("unexpected result %+v", body.Data.Result)
		}
		if body.Data.Result.Reason != model.ReasonNormal {
			t.Errorf("reason = %s", body.Data.Result.Reason)
		}
	})

	t.Run("AnswerAfterFinish", func(t *testing.T) {
		resp := do(t, http.MethodPut, fmt.Sprintf("/student/attempts/%s/answers/0", attemptID), studentToken,
			model.SelectAnswerRequest{Value: "B"})
		expectStatus(t, resp, http.StatusConflict)
		resp.Body.Close()
	})

	t.Run("OtherUserForbidden", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/student/attempts/"+attemptID, teacherToken, nil)
		expectStatus(t, resp, http.StatusForbidden)
		resp.Body.Close()
	})

	// 2 of 3 is below the pass mark, so the next level stays locked.
	t.Run("NextLevelLocked", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/student/quizzes", studentToken, model.StartQuizRequest{
			Grade: e2eGrade, Topic: "E2E Hàm số", Level: string(model.LevelComprehension),
		})
		expectStatus(t, resp, http.StatusForbidden)
		resp.Body.Close()
	})

	t.Run("Progress", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/student/progress", studentToken, nil)
		expectStatus(t, resp, http.StatusOK)

		var body envelope[struct {
			Progress model.UserProgress `json:"progress"`
		}]
		decodeJSON(t, resp, &body)
		if body.Data.Progress.UserID != studentID {
			t.Errorf("progress user = %q", body.Data.Progress.UserID)
		}
	})

	t.Run("Leaderboard", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/leaderboard?limit=5", studentToken, nil)
		expectStatus(t, resp, http.StatusOK)

		var body envelope[struct {
			Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
		}]
		decodeJSON(t, resp, &body)
		if len(body.Data.Leaderboard) > 5 {
			t.Errorf("got %d entries, want at most 5", len(body.Data.Leaderboard))
		}
	})

	t.Run("LeaderboardBadLimit", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/leaderboard?limit=abc", studentToken, nil)
		expectStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	})
}

func TestComposerFlow(t *testing.T) {
	var examID string

	t.Run("Reset", func(t *testing.T) {
		resp := do(t, http.MethodDelete, fmt.Sprintf("/teacher/composer?grade=%d", e2eGrade), teacherToken, nil)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	})

	t.Run("StudentCannotCompose", func(t *testing.T) {
		resp := do(t, http.MethodGet, fmt.Sprintf("/teacher/composer?grade=%d", e2eGrade), studentToken, nil)
		expectStatus(t, resp, http.StatusForbidden)
		resp.Body.Close()
	})

	t.Run("AddRequirement", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/teacher/composer/requirements", teacherToken, model.AddRequirementRequest{
			Grade: e2eGrade, Topic: "E2E Hàm số", Level: string(model.LevelRecall), Count: 2,
		})
		expectStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	})

	t.Run("OverCapacity", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/teacher/composer/requirements", teacherToken, model.AddRequirementRequest{
			Grade: e2eGrade, Topic: "E2E Hàm số", Level: string(model.LevelRecall), Count: 5,
		})
		expectStatus(t, resp, http.StatusUnprocessableEntity)
		resp.Body.Close()
	})

	t.Run("Generate", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/teacher/composer/generate", teacherToken, model.GenerateRequest{
			Grade: e2eGrade, Mode: model.GenerateBatch, Count: 2, Publish: true,
		})
		expectStatus(t, resp, http.StatusOK)

		var body envelope[struct {
			Variants []model.ExamVariant `json:"variants"`
		}]
		decodeJSON(t, resp, &body)
		if len(body.Data.Variants) != 2 {
			t.Fatalf("got %d variants", len(body.Data.Variants))
		}
		for _, v := range body.Data.Variants {
			if len(v.Questions) != 2 {
				t.Errorf("variant %s has %d questions", v.Label, len(v.Questions))
			}
		}
		examID = body.Data.Variants[0].ID.String()
	})

	t.Run("ViewExam", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/exams/"+examID, studentToken, nil)
		expectStatus(t, resp, http.StatusOK)

		raw := readBody(resp)
		if bytes.Contains([]byte(raw), []byte("answer_key")) {
			t.Fatal("exam view leaks answer keys")
		}
	})

	t.Run("StartExam", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/student/exams/"+examID+"/attempts", studentToken, nil)
		expectStatus(t, resp, http.StatusCreated)

		var body envelope[struct {
			Attempt model.AttemptSnapshot `json:"attempt"`
		}]
		decodeJSON(t, resp, &body)
		if body.Data.Attempt.Meta.ExamID == nil || body.Data.Attempt.Meta.ExamID.String() != examID {
			t.Fatalf("attempt not bound to exam: %+v", body.Data.Attempt.Meta)
		}
	})
}

// Helpers

func do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status %d, want %d: %s", resp.StatusCode, want, readBody(resp))
	}
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
