package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"emicli/internal/app"
	"emicli/internal/config"
)

func main() {
	loadEnvFile()

	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadEnvFile populates the environment from the executable-relative .env,
// falling back to the working directory. Variables already set win.
func loadEnvFile() {
	if paths, err := config.GetPaths(); err == nil {
		if err := godotenv.Load(paths.EnvFile); err == nil {
			return
		}
	}
	_ = godotenv.Load()
}
