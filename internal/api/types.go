package api

import (
	"encoding/json"

	"github.com/vincentruan/telegram-spring-bot/internal/journal"
	"github.com/vincentruan/telegram-spring-bot/internal/sender"
)

// SendResponse is returned by POST /commands/{method}
type SendResponse struct {
	CommandID string          `json:"command_id"`
	Status    string          `json:"status"`
	Method    string          `json:"method"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// CommandListResponse is returned by GET /commands
type CommandListResponse struct {
	Commands []journal.Entry        `json:"commands"`
	Counts   map[journal.Status]int `json:"counts"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string       `json:"status"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Sender        sender.Stats `json:"sender"`
}
