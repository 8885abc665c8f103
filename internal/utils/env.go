package utils

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/kelsos/bosonnlp-go/internal/logger"
)

// LoadEnvironment loads BOSONNLP_* variables from .env files so viper can
// pick them up. Variables already present in the environment win.
// It tries the working directory first, then the directory of the executable.
func LoadEnvironment() []string {
	var loaded []string

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file in current directory: %v", err)
	} else {
		loaded = append(loaded, ".env")
	}

	execPath, err := os.Executable()
	if err != nil {
		logger.Debug("Could not determine executable path: %v", err)
		return loaded
	}

	envPath := filepath.Join(filepath.Dir(execPath), ".env")
	if abs, err := filepath.Abs(".env"); err == nil && abs == envPath {
		return loaded
	}
	if err := godotenv.Load(envPath); err != nil {
		logger.Debug("No .env file in app directory (%s): %v", filepath.Dir(execPath), err)
	} else {
		loaded = append(loaded, envPath)
	}
	return loaded
}
