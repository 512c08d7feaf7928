package app

import (
	"fmt"
	"strings"
)

// allowedEnvPrefixes is the allowlist for environment variables settable on
// an active mount through the management surface.
var allowedEnvPrefixes = []string{
	"API_KEY",
	"API_TOKEN",
	"AUTH_",
	"DATABASE_",
	"DB_",
	"GITHUB_",
	"OPENAI_",
	"ANTHROPIC_",
	"AWS_",
	"AZURE_",
	"GCP_",
	"SLACK_",
	"DISCORD_",
	"NOTION_",
	"MCP_",
}

func validateEnvironment(env map[string]string) error {
	for key := range env {
		upper := strings.ToUpper(key)
		allowed := false
		for _, prefix := range allowedEnvPrefixes {
			if strings.HasPrefix(upper, prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("environment variable %q not in allowlist (allowed prefixes: %s)",
				key, strings.Join(allowedEnvPrefixes, ", "))
		}
	}
	return nil
}
