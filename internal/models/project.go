package models

import "time"

type ProjectStatus string

const (
	ProjectStatusDraft                ProjectStatus = "draft"
	ProjectStatusEstimationInProgress ProjectStatus = "estimation_in_progress"
	ProjectStatusAnalyzed             ProjectStatus = "analyzed"
	ProjectStatusProposalSent         ProjectStatus = "proposal_sent"
	ProjectStatusNegotiation          ProjectStatus = "negotiation"
	ProjectStatusWon                  ProjectStatus = "won"
	ProjectStatusLost                 ProjectStatus = "lost"
)

// Project mirrors the downstream API's project record. The id is always
// assigned downstream.
type Project struct {
	ID           string                   `json:"id"`
	ProjectName  string                   `json:"projectName"`
	ClientName   string                   `json:"clientName,omitempty"`
	ClientEmail  string                   `json:"clientEmail,omitempty"`
	ClientPhone  string                   `json:"clientPhone,omitempty"`
	Building     Building                 `json:"building"`
	Location     string                   `json:"location,omitempty"`
	Requirements string                   `json:"requirements,omitempty"`
	Status       ProjectStatus            `json:"status"`
	Messages     []map[string]interface{} `json:"messages,omitempty"`
	History      []map[string]interface{} `json:"history,omitempty"`
	Metadata     map[string]interface{}   `json:"metadata,omitempty"`
	CreatedAt    *time.Time               `json:"createdAt,omitempty"`
}

type Building struct {
	Type   string  `json:"type"`
	Size   float64 `json:"size"`
	Floors int     `json:"floors,omitempty"`
	Zones  int     `json:"zones,omitempty"`
}
