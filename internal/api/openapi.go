package api

import (
	"fmt"
	"sort"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the ops API, with one
// toggle path per configured device label.
func buildOpenAPIDoc(labels []string) map[string]any {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)

	security := []any{map[string]any{"BearerAuth": []string{}}}

	paths := map[string]any{
		"/healthz": map[string]any{
			"get": map[string]any{
				"operationId": "healthz",
				"summary":     "Liveness",
				"responses":   map[string]any{"200": map[string]any{"description": "Service is up"}},
			},
		},
		"/devices": map[string]any{
			"get": map[string]any{
				"operationId": "listDevices",
				"summary":     "Registered devices with last known state",
				"responses": map[string]any{
					"200": map[string]any{"description": "Device list"},
					"403": map[string]any{"description": "Insufficient scope"},
				},
				"security": security,
			},
		},
		"/events": map[string]any{
			"get": map[string]any{
				"operationId": "streamEvents",
				"summary":     "Server-sent event stream",
				"responses":   map[string]any{"200": map[string]any{"description": "text/event-stream"}},
				"security":    security,
			},
		},
	}

	for path, item := range buildDevicePaths(sorted, security) {
		paths[path] = item
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "messenger-wemo ops API",
			"version": "1.0",
		},
		"paths": paths,
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

// buildDevicePaths builds toggle path items for each label.
func buildDevicePaths(labels []string, security []any) map[string]any {
	paths := map[string]any{}
	for _, label := range labels {
		paths[fmt.Sprintf("/devices/%s/toggle", label)] = map[string]any{
			"post": map[string]any{
				"operationId": "toggle__" + label,
				"summary":     fmt.Sprintf("Toggle %s", label),
				"tags":        []string{"devices"},
				"responses": map[string]any{
					"200": map[string]any{"description": "Confirmed new state"},
					"403": map[string]any{"description": "Insufficient scope"},
					"404": map[string]any{"description": "Device not discovered yet"},
					"502": map[string]any{"description": "Device communication failed; see state_ambiguous"},
				},
				"security": security,
			},
		}
	}
	return paths
}
