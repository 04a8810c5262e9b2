// Command console is a terminal client for playing against a running
// turn-engine API.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type ConsoleConfig struct {
	APIBaseURL string
	WorldID    string
	RulesetID  string
	StoryID    string
	Timeout    time.Duration
}

func main() {
	cfg := &ConsoleConfig{
		APIBaseURL: envOr("API_BASE_URL", "http://localhost:8080"),
		WorldID:    envOr("CONSOLE_WORLD", "default"),
		RulesetID:  envOr("CONSOLE_RULESET", "default"),
		StoryID:    envOr("CONSOLE_STORY", "console"),
		// Turns block on model inference, so the client waits well past
		// normal HTTP timeouts.
		Timeout: 90 * time.Second,
	}
	client := &http.Client{Timeout: cfg.Timeout}

	if !testConnection(client, cfg.APIBaseURL) {
		fmt.Fprintln(os.Stderr, "Could not reach the API at "+cfg.APIBaseURL+". Is it running?")
		os.Exit(1)
	}

	program := tea.NewProgram(NewConsoleUI(cfg, client),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
