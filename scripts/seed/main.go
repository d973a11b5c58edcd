// Seed adds demo tasks for one user, spread over the last 40 days. Run from project root: go run ./scripts/seed
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"task-tracker/internal/config"
	"task-tracker/internal/database"
	"task-tracker/internal/models"
	"task-tracker/internal/repository"

	"github.com/google/uuid"
)

func main() {
	cfg := config.Get()
	ctx := context.Background()

	db, err := database.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, cfg.DBPoolSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, "DB connection failed:", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.MigrateOrCreateSchema(ctx, db); err != nil {
		fmt.Fprintln(os.Stderr, "Schema failed:", err)
		os.Exit(1)
	}

	userID := int64(1)
	if len(os.Args) > 1 {
		if n, err := strconv.ParseInt(os.Args[1], 10, 64); err == nil {
			userID = n
		}
	}

	const total = 200
	repo := repository.NewTaskRepository(db)
	loc := cfg.Location()
	now := time.Now().In(loc)
	start := time.Now()

	for i := 0; i < total; i++ {
		created := now.Add(-time.Duration(rand.Intn(40*24*60)) * time.Minute)
		category := int64(rand.Intn(4) + 1)
		task := &models.Task{
			UserID:         userID,
			Name:           fmt.Sprintf("Task %d", i+1),
			Description:    "seed " + uuid.NewString(),
			DateOfCreation: created.Format(models.DateLayout),
			Deadline:       created.AddDate(0, 0, rand.Intn(14)+1).Format(models.DateLayout),
			Completed:      rand.Intn(2),
			CategoryID:     &category,
			CreatedAt:      created.UTC().Format(models.CreatedAtLayout),
		}
		if err := repo.Create(ctx, task); err != nil {
			fmt.Fprintln(os.Stderr, "Insert failed:", err)
			os.Exit(1)
		}
		fmt.Printf("\rInserted %d / %d", i+1, total)
	}

	fmt.Printf("\nDone: %d tasks for user %d in %v\n", total, userID, time.Since(start))
}
