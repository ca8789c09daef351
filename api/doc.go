// Package api provides OpenAPI/Swagger documentation for the TeamFlow API.
//
// This package groups the HTTP handler packages and the OpenAPI annotations
// for the TeamFlow HTTP API.
//
// # API Overview
//
// TeamFlow provides a RESTful API for:
//   - Agent profile registration and compatibility scoring
//   - Team execution lifecycle (start, snapshot, cancel)
//   - External conflict resolution for escalated conflicts
//   - Execution event streaming over WebSocket
//   - Health monitoring and metrics
//
// # Authentication
//
// When auth is enabled, API endpoints require authentication via the
// X-API-Key header or a Bearer JWT:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Generating Documentation
//
// To regenerate Swagger documentation using swag:
//
//	swag init -g cmd/teamflow/main.go -o api --parseDependency --parseInternal
package api
