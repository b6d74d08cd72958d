// Package app composes the canvas services into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── access/             # Role and ownership policy shared by services
//	├── domain/             # Domain models (pure data structures)
//	│   ├── user/           # Users and roles
//	│   ├── vbu/            # Venture business units
//	│   ├── canvas/         # Canvases, theses, proof points, health
//	│   ├── attachment/     # Attachment metadata
//	│   ├── review/         # Monthly reviews and commitments
//	│   └── portfolio/      # Portfolio summary rows and notes
//	├── storage/            # Store interfaces
//	│   ├── memory/         # In-memory implementation for tests and dev
//	│   └── postgres/       # PostgreSQL implementation
//	├── services/           # Business rules per domain
//	├── httpapi/            # REST handlers and routing
//	├── runtime/            # Config-driven wiring and the HTTP server
//	├── system/             # Lifecycle manager and cron scheduler
//	└── metrics/            # Prometheus collectors
//
// # Dependency Direction
//
//	cmd/canvas/
//	      │
//	      ▼
//	internal/app/runtime ──► internal/app/httpapi ──► internal/middleware
//	      │                          │
//	      ▼                          ▼
//	internal/app (composition) ──► internal/app/services/* ──► internal/app/storage
//
// Services never import httpapi; they return *errors.ServiceError values
// that the HTTP layer renders.
package app
