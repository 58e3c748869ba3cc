package models

import "time"

// Session is the server-held state of one estimation wizard run.
type Session struct {
	SessionID        string                 `json:"sessionId"`
	ProjectData      map[string]interface{} `json:"projectData"`
	CurrentStep      int                    `json:"currentStep"`
	CompletedSteps   []int                  `json:"completedSteps"`
	ValidationStatus ValidationStatus       `json:"validationStatus"`
	Version          int64                  `json:"version"`
	CreatedAt        time.Time              `json:"createdAt"`
	LastActivity     time.Time              `json:"lastActivity"`
	ExpiresAt        time.Time              `json:"expiresAt"`
}

// ValidationStatus records which wizard steps passed client validation.
type ValidationStatus struct {
	Step1 bool `json:"step1"`
	Step2 bool `json:"step2"`
	Step3 bool `json:"step3"`
	Step4 bool `json:"step4"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

const (
	MinWizardStep = 1
	MaxWizardStep = 5
)
