package api

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the ops API.
func buildOpenAPIDoc() map[string]any {
	bearer := []any{map[string]any{"BearerAuth": []string{}}}
	jsonBody := func(description string) map[string]any {
		return map[string]any{
			"description": description,
			"content":     map[string]any{"application/json": map[string]any{}},
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "tgsender",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/healthz": map[string]any{
				"get": map[string]any{
					"operationId": "healthz",
					"summary":     "Sender state and queue statistics",
					"responses": map[string]any{
						"200": jsonBody("Sender running"),
						"503": jsonBody("Sender not running"),
					},
				},
			},
			"/commands/{method}": map[string]any{
				"post": map[string]any{
					"operationId": "sendCommand",
					"summary":     "Queue a Bot API method call",
					"parameters": []any{
						map[string]any{"name": "method", "in": "path", "required": true, "schema": map[string]any{"type": "string"}},
						map[string]any{"name": "wait", "in": "query", "required": false, "schema": map[string]any{"type": "string"}},
					},
					"requestBody": map[string]any{
						"required": false,
						"content": map[string]any{
							"application/json": map[string]any{"schema": map[string]any{"type": "object"}},
						},
					},
					"responses": map[string]any{
						"200": jsonBody("Command executed (wait only)"),
						"202": jsonBody("Command queued"),
						"400": jsonBody("Bad request"),
						"502": jsonBody("Command failed (wait only)"),
						"503": jsonBody("Command dropped"),
					},
					"security": bearer,
				},
			},
			"/commands": map[string]any{
				"get": map[string]any{
					"operationId": "listCommands",
					"summary":     "Recent command outcomes",
					"parameters": []any{
						map[string]any{"name": "limit", "in": "query", "required": false, "schema": map[string]any{"type": "integer"}},
					},
					"responses": map[string]any{"200": jsonBody("Journal entries")},
					"security":  bearer,
				},
			},
			"/events": map[string]any{
				"get": map[string]any{
					"operationId": "events",
					"summary":     "Server-sent event stream",
					"responses":   map[string]any{"200": map[string]any{"description": "text/event-stream"}},
					"security":    bearer,
				},
			},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
