package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/toanlab/lms-backend/internal/model"
)

func bindBody(t *testing.T, body string, dst any) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestQuizTags(t *testing.T) {
	Setup()

	tests := []struct {
		name  string
		body  string
		dst   any
		field string
	}{
		{"valid start", `{"grade":10,"topic":"Hàm số","level":"Vận dụng"}`, &model.StartQuizRequest{}, ""},
		{"bad level", `{"grade":10,"topic":"Hàm số","level":"Khó"}`, &model.StartQuizRequest{}, "level"},
		{"valid mark", `{"mark":"Đ"}`, &model.UpdatePartRequest{}, ""},
		{"bad mark", `{"mark":"T"}`, &model.UpdatePartRequest{}, "mark"},
		{"bad type", `{"grade":10,"topic":"x","level":"Nhận biết","question_type":"Tự luận","question_text":"?","answer_key":"A"}`, &model.SaveQuestionRequest{}, "question_type"},
		{"missing hidden", `{}`, &model.VisibilityRequest{}, "hidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := bindBody(t, tt.body, tt.dst)
			if tt.field == "" {
				if fields != nil {
					t.Fatalf("unexpected errors %v", fields)
				}
				return
			}
			if _, ok := fields[tt.field]; !ok {
				t.Fatalf("expected error on %q, got %v", tt.field, fields)
			}
		})
	}
}

func TestMalformedJSONGoesToDetail(t *testing.T) {
	Setup()
	fields := bindBody(t, `{"grade":`, &model.StartQuizRequest{})
	if fields["detail"] == "" {
		t.Fatalf("fields = %v", fields)
	}
}
