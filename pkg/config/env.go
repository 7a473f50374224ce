// env.config (KEY=VALUE) support, kept separate from the YAML file so secrets
// can stay out of version control

package config

import (
	"bufio"
	"os"
	"strings"
)

// ReadEnvConfig reads env.config (KEY=VALUE). A missing or unreadable file
// yields an empty map.
func ReadEnvConfig(path string) map[string]string {
	env := make(map[string]string)
	f, err := os.Open(path)
	if err != nil {
		return env
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return env
}
