package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/database"
	"github.com/toanlab/lms-backend/internal/logger"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/repository"
)

// seedFile is the JSON layout accepted by -file.
type seedFile struct {
	Questions []model.Question `json:"questions"`
	Theories  []model.Theory   `json:"theories"`
}

func main() {
	var path string
	flag.StringVar(&path, "file", "", "JSON file with questions and theories (built-in sample when empty)")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	data := sample()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to read seed file")
		}
		data = seedFile{}
		if err := json.Unmarshal(raw, &data); err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to parse seed file")
		}
	}

	fmt.Printf("=== Seeding %d questions ===\n", len(data.Questions))

	valid := make([]model.Question, 0, len(data.Questions))
	for _, q := range data.Questions {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if !q.QuestionType.Valid() || !q.Level.Valid() {
			fmt.Printf("Skipping %s: unknown type %q or level %q\n", q.ID, q.QuestionType, q.Level)
			continue
		}
		if err := model.ValidateAnswerKey(q.QuestionType, q.AnswerKey); err != nil {
			fmt.Printf("Skipping %s: %v\n", q.ID, err)
			continue
		}
		valid = append(valid, q)
	}

	// ─── Copy Questions ────────────────────────────────────────────────
	questionRepo := repository.NewQuestionRepository(pool)
	n, err := questionRepo.BulkInsert(ctx, valid)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to copy questions")
	}

	// ─── Upsert Theories ───────────────────────────────────────────────
	batch := &pgx.Batch{}
	for _, t := range data.Theories {
		batch.Queue(
			`INSERT INTO theories (grade, topic, level, title, content)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (grade, topic, level) DO UPDATE SET title = EXCLUDED.title, content = EXCLUDED.content`,
			t.Grade, t.Topic, string(t.Level), t.Title, t.Content,
		)
	}
	if batch.Len() > 0 {
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			log.Fatal().Err(err).Msg("Failed to upsert theories")
		}
	}

	fmt.Printf("\nSeed completed! Added %d/%d questions and %d theories.\n", n, len(data.Questions), len(data.Theories))
}

func sample() seedFile {
	return seedFile{
		Questions: []model.Question{
			{
				ID: "T12-HS-001", Grade: 12, Topic: "Hàm số", Level: model.LevelRecall,
				QuestionType: model.QuestionTypeMultipleChoice,
				QuestionText: "Hàm số y = x^3 - 3x đạt cực đại tại điểm nào?",
				OptionA:      "x = -1", OptionB: "x = 1", OptionC: "x = 0", OptionD: "x = 3",
				AnswerKey: "A", Solution: "y' = 3x^2 - 3 đổi dấu từ dương sang âm tại x = -1.",
			},
			{
				ID: "T12-HS-002", Grade: 12, Topic: "Hàm số", Level: model.LevelRecall,
				QuestionType: model.QuestionTypeTrueFalse,
				QuestionText: "Cho hàm số y = (x + 1)/(x - 1). Xét tính đúng sai của các mệnh đề.",
				OptionA:      "Tập xác định là R \\ {1}", OptionB: "Hàm số đồng biến trên từng khoảng xác định",
				OptionC: "Tiệm cận ngang là y = 1", OptionD: "Đồ thị đi qua điểm (0; 1)",
				AnswerKey: "Đ-S-Đ-S",
			},
			{
				ID: "T12-HS-003", Grade: 12, Topic: "Hàm số", Level: model.LevelComprehension,
				QuestionType: model.QuestionTypeShortAnswer,
				QuestionText: "Tìm giá trị lớn nhất của hàm số y = -x^2 + 4x + 1 trên R.",
				AnswerKey:    "5",
			},
			{
				ID: "T12-TP-001", Grade: 12, Topic: "Tích phân", Level: model.LevelApplication,
				QuestionType: model.QuestionTypeMultipleChoice,
				QuestionText: "Tính tích phân của 2x từ 0 đến 1.",
				OptionA:      "0", OptionB: "1", OptionC: "2", OptionD: "1/2",
				AnswerKey: "B",
			},
			{
				ID: "T12-TP-002", Grade: 12, Topic: "Tích phân", Level: model.LevelApplication,
				QuestionType: model.QuestionTypeShortAnswer,
				QuestionText: "Tính diện tích hình phẳng giới hạn bởi y = x^2 và y = x.",
				AnswerKey:    "0.17",
			},
		},
		Theories: []model.Theory{
			{
				Grade: 12, Topic: "Hàm số", Level: model.LevelRecall,
				Title:   "Cực trị của hàm số",
				Content: "Điểm x0 là điểm cực đại khi f'(x) đổi dấu từ dương sang âm khi đi qua x0.",
			},
		},
	}
}
