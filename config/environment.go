package config

import (
	"os"
	"regexp"
)

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references in raw with the corresponding
// environment variable values. Unset variables expand to an empty string so
// optional settings (credentials in particular) can stay blank locally.
func expandEnv(raw string) string {
	return envRefPattern.ReplaceAllStringFunc(raw, func(match string) string {
		name := envRefPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
