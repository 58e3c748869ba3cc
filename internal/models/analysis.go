package models

// Analysis is the canonical shape of a document extraction.
type Analysis struct {
	Vendors                []Vendor            `json:"vendors"`
	Materials              []Material          `json:"materials"`
	EstimationElements     []EstimationElement `json:"estimationElements"`
	ProjectDetails         ProjectDetails      `json:"projectDetails"`
	Recommendations        []string            `json:"recommendations"`
	ComplianceRequirements []string            `json:"complianceRequirements"`
	EstimatedBudget        float64             `json:"estimatedBudget"`
	// FallbackUsed is set when canned vendors or elements were substituted
	// for an empty extraction.
	FallbackUsed bool `json:"fallbackUsed"`
}

type Vendor struct {
	Name        string   `json:"name"`
	Confidence  float64  `json:"confidence"`
	Description string   `json:"description"`
	Specialties []string `json:"specialties"`
	Source      string   `json:"source"`
}

type EstimationElement struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Qty         int      `json:"qty"`
	SpecSummary string   `json:"specSummary"`
	UnitPrice   float64  `json:"unitPrice"`
	Vendor      string   `json:"vendor"`
	Category    string   `json:"category"`
	Placement   string   `json:"placement"`
	Compliance  []string `json:"compliance"`
	Confidence  float64  `json:"confidence"`
}

// LineTotal is qty times unit price.
func (e EstimationElement) LineTotal() float64 {
	return float64(e.Qty) * e.UnitPrice
}

type Material struct {
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	Unit          string `json:"unit"`
	Specification string `json:"specification"`
	Category      string `json:"category"`
}

type ProjectDetails struct {
	Type         string   `json:"type"`
	Scope        string   `json:"scope"`
	Requirements []string `json:"requirements"`
	Timeline     string   `json:"timeline"`
}
