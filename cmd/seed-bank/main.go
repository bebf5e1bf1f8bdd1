package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hirepath/assess-backend/internal/config"
	"github.com/hirepath/assess-backend/internal/database"
	"github.com/hirepath/assess-backend/internal/logger"
	"github.com/hirepath/assess-backend/internal/model"
	"github.com/hirepath/assess-backend/internal/repository"
)

// seed-bank loads curated questions into the shared bank from a JSON file:
//
//	seed-bank -file bank.json
//
// The file holds an array of bank questions in the model.BankQuestion shape.
func main() {
	var file string
	flag.StringVar(&file, "file", "bank.json", "Path to the bank questions JSON file")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	raw, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read bank file")
	}

	var questions []model.BankQuestion
	if err := json.Unmarshal(raw, &questions); err != nil {
		log.Fatal().Err(err).Msg("Failed to parse bank file")
	}
	if len(questions) == 0 {
		log.Fatal().Msg("Bank file contains no questions")
	}

	bankRepo := repository.NewBankRepository(pool)

	fmt.Printf("=== Seeding %d bank questions ===\n", len(questions))

	inserted := 0
	for i := range questions {
		q := &questions[i]
		if q.Prompt == "" || q.Kind == "" || q.Category == "" || q.Difficulty == "" || q.Type == "" {
			log.Warn().Int("index", i).Msg("Skipping incomplete bank question")
			continue
		}
		if q.Type == model.QuestionTypeCoding && len(q.TestCases) == 0 {
			log.Warn().Int("index", i).Msg("Skipping coding question without test cases")
			continue
		}
		if q.Weight <= 0 {
			q.Weight = 1
		}

		if err := bankRepo.Insert(ctx, q); err != nil {
			log.Error().Err(err).Int("index", i).Msg("Insert failed")
			continue
		}
		inserted++
	}

	fmt.Printf("Inserted %d of %d questions\n", inserted, len(questions))
}
