package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestSetupUnknownLevelFallsBackToInfo(t *testing.T) {
	Setup("loud", "json")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("global level = %s", zerolog.GlobalLevel())
	}
	Setup("debug", "json")
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("global level = %s", zerolog.GlobalLevel())
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for path, want := range map[string]string{"/ok": "debug", "/boom": "error"} {
		buf.Reset()
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if line["level"] != want || line["component"] != "http" || line["path"] != path {
			t.Fatalf("%s: unexpected log line %v", path, line)
		}
	}
}
