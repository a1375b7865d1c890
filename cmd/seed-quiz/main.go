package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func main() {
	students := flag.Int("students", 5, "number of student tokens to print")
	duration := flag.Int("duration", 600, "quiz duration in seconds")
	tokensOnly := flag.Bool("tokens-only", false, "only print tokens (for an in-memory server)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	authService := service.NewAuthService(cfg)
	if *tokensOnly {
		printTokens(authService, *students)
		return
	}

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set; use -tokens-only and create the quiz through the proctor API")
	}

	if err := database.MigrateUp(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	quizService := service.NewQuizService(repository.NewQuizRepository(pool), log)

	fmt.Println("=== Seeding demo quiz ===")

	quiz, err := quizService.Create(ctx, model.CreateQuizRequest{
		Title:           "Ujian Demo IPA",
		DurationSeconds: *duration,
		Publish:         true,
		Questions: []model.CreateQuestionRequest{
			{
				QuestionText:  "Planet terbesar di tata surya adalah...",
				QuestionType:  model.QuestionTypeSingleChoice,
				Options:       []model.Option{{ID: "a", Text: "Mars"}, {ID: "b", Text: "Jupiter"}, {ID: "c", Text: "Saturnus"}},
				CorrectAnswer: "b",
			},
			{
				QuestionText:  "Gas yang dihasilkan tumbuhan saat fotosintesis?",
				QuestionType:  model.QuestionTypeSingleChoice,
				Options:       []model.Option{{ID: "a", Text: "Oksigen"}, {ID: "b", Text: "Nitrogen"}, {ID: "c", Text: "Karbon dioksida"}},
				CorrectAnswer: "a",
			},
			{
				QuestionText:  "Rumus kimia air?",
				QuestionType:  model.QuestionTypeFreeText,
				CorrectAnswer: "H2O",
			},
			{
				QuestionText:  "Satuan SI untuk suhu?",
				QuestionType:  model.QuestionTypeFreeText,
				CorrectAnswer: "Kelvin",
			},
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create quiz")
	}
	fmt.Printf("Quiz ID: %s (%d seconds)\n", quiz.ID, quiz.DurationSeconds)

	printTokens(authService, *students)

	fmt.Println("\nSeed completed!")
}

func printTokens(authService *service.AuthService, students int) {
	proctorToken, err := authService.GenerateProctorToken(1, model.PermissionCodes(model.AllPermissions))
	if err != nil {
		fmt.Printf("Error signing proctor token: %v\n", err)
		return
	}
	fmt.Printf("\nProctor token:\n%s\n", proctorToken)

	fmt.Println("\nStudent tokens:")
	for i := 1; i <= students; i++ {
		token, err := authService.GenerateStudentToken(i)
		if err != nil {
			fmt.Printf("Error signing token for student %d: %v\n", i, err)
			continue
		}
		fmt.Printf("  student %d: %s\n", i, token)
	}
}
