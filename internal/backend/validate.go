package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"firecost/internal/models"
)

var ErrValidation = errors.New("validation failed")

// ValidationError names the first offending field of a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var BuildingTypes = []string{
	"office", "retail", "warehouse", "residential", "healthcare",
	"education", "industrial", "hospitality", "mixed_use",
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ProjectRequest is the inbound create-project body.
type ProjectRequest struct {
	ProjectName   string                 `json:"projectName"`
	ClientName    string                 `json:"clientName"`
	ClientEmail   string                 `json:"clientEmail"`
	ClientPhone   string                 `json:"clientPhone"`
	BuildingType  string                 `json:"buildingType"`
	SquareFootage interface{}            `json:"squareFootage"`
	Floors        int                    `json:"floors"`
	Zones         int                    `json:"zones"`
	Location      string                 `json:"location"`
	Requirements  string                 `json:"requirements"`
	Status        string                 `json:"status"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// Validate checks the request and returns the parsed square footage.
func (r *ProjectRequest) Validate() (float64, error) {
	if strings.TrimSpace(r.ProjectName) == "" {
		return 0, invalid("projectName", "projectName is required")
	}
	bt := strings.TrimSpace(r.BuildingType)
	if bt == "" {
		return 0, invalid("buildingType", "buildingType is required")
	}
	if !isBuildingType(bt) {
		return 0, invalid("buildingType", "buildingType must be one of %s", strings.Join(BuildingTypes, ", "))
	}
	if r.SquareFootage == nil {
		return 0, invalid("squareFootage", "squareFootage is required")
	}
	size, ok := number(r.SquareFootage)
	if !ok || size <= 0 {
		return 0, invalid("squareFootage", "squareFootage must be a positive number")
	}
	if email := strings.TrimSpace(r.ClientEmail); email != "" && !emailPattern.MatchString(email) {
		return 0, invalid("clientEmail", "clientEmail is not a valid email address")
	}
	if r.Floors < 0 || r.Zones < 0 {
		return 0, invalid("floors", "floors and zones must not be negative")
	}
	if r.Status != "" && !isProjectStatus(models.ProjectStatus(r.Status)) {
		return 0, invalid("status", "unknown project status %q", r.Status)
	}
	return size, nil
}

// ToProject validates the request and builds the project record.
func (r *ProjectRequest) ToProject() (*models.Project, error) {
	size, err := r.Validate()
	if err != nil {
		return nil, err
	}
	status := models.ProjectStatus(r.Status)
	if status == "" {
		status = models.ProjectStatusDraft
	}
	return &models.Project{
		ProjectName:  strings.TrimSpace(r.ProjectName),
		ClientName:   strings.TrimSpace(r.ClientName),
		ClientEmail:  strings.TrimSpace(r.ClientEmail),
		ClientPhone:  strings.TrimSpace(r.ClientPhone),
		Building:     models.Building{Type: strings.TrimSpace(r.BuildingType), Size: size, Floors: r.Floors, Zones: r.Zones},
		Location:     r.Location,
		Requirements: r.Requirements,
		Status:       status,
		Metadata:     r.Metadata,
	}, nil
}

// LineItem is one priced line of an estimation.
type LineItem = models.EstimationElement

// EstimationRequest is the inbound create-estimation body. The project
// fields carry the same rules as a create-project request.
type EstimationRequest struct {
	ProjectRequest
	ProjectID       string     `json:"projectId"`
	LineItems       []LineItem `json:"lineItems"`
	Vendors         []string   `json:"vendors"`
	Recommendations []string   `json:"recommendations"`
	Notes           string     `json:"notes"`
}

// Validate checks the project fields, then the estimation itself, and
// returns the parsed square footage.
func (r *EstimationRequest) Validate() (float64, error) {
	size, err := r.ProjectRequest.Validate()
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		return 0, invalid("projectId", "projectId is required")
	}
	if len(r.LineItems) == 0 {
		return 0, invalid("lineItems", "at least one line item is required")
	}
	for i, item := range r.LineItems {
		if strings.TrimSpace(item.Description) == "" && strings.TrimSpace(item.Code) == "" {
			return 0, invalid("lineItems", "lineItems[%d] needs a code or description", i)
		}
		if item.Qty <= 0 {
			return 0, invalid("lineItems", "lineItems[%d].qty must be greater than 0", i)
		}
		if item.UnitPrice < 0 {
			return 0, invalid("lineItems", "lineItems[%d].unitPrice must not be negative", i)
		}
	}
	return size, nil
}

// Subtotal sums the line totals.
func (r *EstimationRequest) Subtotal() float64 {
	var total float64
	for _, item := range r.LineItems {
		total += item.LineTotal()
	}
	return total
}

func isBuildingType(v string) bool {
	for _, bt := range BuildingTypes {
		if bt == v {
			return true
		}
	}
	return false
}

func isProjectStatus(s models.ProjectStatus) bool {
	switch s {
	case models.ProjectStatusDraft, models.ProjectStatusEstimationInProgress, models.ProjectStatusAnalyzed,
		models.ProjectStatusProposalSent, models.ProjectStatusNegotiation, models.ProjectStatusWon, models.ProjectStatusLost:
		return true
	}
	return false
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 64)
		return f, err == nil
	}
	return 0, false
}
