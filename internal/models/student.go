package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Risk levels and model phases used by the prediction backend
const (
	RiskHigh     = "high"
	RiskModerate = "moderate"
	RiskLow      = "low"

	PhaseEarly = "early"
	PhaseMid   = "mid"
	PhaseFinal = "final"
)

type Prediction struct {
	StudentNumber string          `json:"student_number"`
	RiskScore     decimal.Decimal `json:"risk_score"`
	RiskLevel     string          `json:"risk_level"`
	ModelPhase    string          `json:"model_phase"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Count of students at one risk level and its change since previous prediction round
type RiskCount struct {
	Count int `json:"count"`
	Trend int `json:"trend"`
}

// Keyed by risk level
type RiskSummary map[string]RiskCount

// Keyed by model phase, then risk level
type PhaseSummary map[string]map[string]int

type RiskIncrease struct {
	StudentNumber string          `json:"student_number"`
	FirstName     string          `json:"first_name,omitempty"`
	LastName      string          `json:"last_name,omitempty"`
	Increase      decimal.Decimal `json:"increase"`
	PreviousScore decimal.Decimal `json:"previous_score"`
	CurrentScore  decimal.Decimal `json:"current_score"`
}

// Model description per phase; backend returns free form metrics
type ModelInfo map[string]map[string]any

// Row of uploaded file the backend skipped or failed to import
type UploadIssue struct {
	Row           int    `json:"row"`
	StudentNumber string `json:"student_number"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Result of '/upload/students' or '/upload/grades'. Each endpoint fills its own fields
type UploadResult struct {
	Message string `json:"message,omitempty"`
	Added   int    `json:"added"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
	Details struct {
		Skipped  []UploadIssue `json:"skipped,omitempty"`
		Failures []UploadIssue `json:"failures,omitempty"`
	} `json:"details"`

	StudentsUpdated []string `json:"students_updated,omitempty"`
	StudentsSkipped []string `json:"students_skipped,omitempty"`
}
