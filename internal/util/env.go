package util

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
)

var defaultEnvFiles = []string{".env", "kinfolk.env"}

// LoadEnv loads env files into the process environment before config is
// read. Variables that are already set win. Without paths it tries .env and
// kinfolk.env in the working directory. It returns the files it loaded.
func LoadEnv(paths ...string) []string {
	if len(paths) == 0 {
		paths = defaultEnvFiles
	}

	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			logger.Warn("[Env] Failed to load env file", "path", p, "err", err)
			continue
		}
		loaded = append(loaded, p)
	}
	if len(loaded) == 0 {
		logger.Debug("[Env] No env file found, using system environment variables")
	}
	return loaded
}
