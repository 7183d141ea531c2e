// Package domain defines the core domain types and collaborator contracts.
//
// This package contains concept-oriented files (session.go, state.go, camera.go,
// ai.go, template.go) with shared types and cross-cutting interfaces. No
// implementation code - just contracts. Prevents circular imports by keeping
// interfaces on the consumer side.
package domain
