// Package web provides the REST API for journey and run management.
package web

import "github.com/jornada-io/jornada/pkg/models"

// CreateJourneyRequest is the request body for creating a journey.
type CreateJourneyRequest struct {
	Name     string         `json:"name"     validate:"required,min=3"`
	Nodes    []*models.Node `json:"nodes"`
	Edges    []*models.Edge `json:"edges"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Owner    string         `json:"owner,omitempty"`
}

// UpdateJourneyRequest is the request body for updating a journey. Fields are
// optional to support partial updates; nodes and edges are replaced whole
// when present.
type UpdateJourneyRequest struct {
	Name     *string        `json:"name,omitempty"   validate:"omitempty,min=3"`
	Status   *string        `json:"status,omitempty" validate:"omitempty,oneof=draft published archived"`
	Nodes    []*models.Node `json:"nodes,omitempty"`
	Edges    []*models.Edge `json:"edges,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// LaunchRunRequest is the request body for launching a run. Rows override the
// journey's audience node when provided.
type LaunchRunRequest struct {
	Channel  string            `json:"channel"  validate:"omitempty,oneof=whatsapp sms"`
	Rows     []map[string]any  `json:"rows,omitempty"`
	PhoneKey string            `json:"phone_key,omitempty"`
	Mapping  map[string]string `json:"mapping,omitempty"`
}
