// Package services defines the shared error taxonomy used by pipeline stages
// and external engine wrappers. Errors are tagged with sentinel markers via
// Wrap so the orchestrator and metrics layer can classify failures without
// string matching.
package services
