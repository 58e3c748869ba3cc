// Package normalize maps loosely shaped LLM extraction JSON onto the
// canonical models.Analysis.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"firecost/internal/models"
)

const (
	defaultVendorConfidence  = 0.8
	defaultElementConfidence = 0.8
	defaultVendorSource      = "AI Analysis"
	defaultMaterialUnit      = "ea"

	defaultProjectType  = "Fire Safety System"
	defaultProjectScope = "Fire alarm and detection system installation"
	defaultTimeline     = "To be determined"
)

var (
	defaultSpecialties  = []string{"Fire Safety", "Security Systems"}
	defaultRequirements = []string{"NFPA 72 compliance"}
)

// Options tune defaults that depend on the request.
type Options struct {
	// ProjectType is used when the extraction names none.
	ProjectType string
}

// Normalize converts raw LLM output into the canonical analysis. The result
// always has every field populated; feeding its JSON back in yields the same
// value.
func Normalize(raw map[string]interface{}, opts Options) models.Analysis {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	out := models.Analysis{
		Vendors:                vendors(raw),
		Materials:              materials(raw),
		EstimationElements:     elements(raw),
		ProjectDetails:         projectDetails(raw, opts),
		Recommendations:        stringList(raw["recommendations"], "text", "recommendation", "description", "title"),
		ComplianceRequirements: complianceRequirements(raw),
		EstimatedBudget:        estimatedBudget(raw),
	}
	if b, ok := raw["fallbackUsed"].(bool); ok && b {
		out.FallbackUsed = true
	}
	if len(out.EstimationElements) == 0 {
		out.EstimationElements = fallbackElements()
		out.FallbackUsed = true
	}
	if len(out.Vendors) == 0 {
		out.Vendors = fallbackVendors()
		out.FallbackUsed = true
	}
	return out
}

// NormalizeJSON decodes content and normalizes it. Content that is not a
// JSON object is an error; the caller decides how to surface it.
func NormalizeJSON(content []byte, opts Options) (models.Analysis, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(content, &raw); err != nil {
		return models.Analysis{}, fmt.Errorf("decode extraction: %w", err)
	}
	return Normalize(raw, opts), nil
}

func vendors(raw map[string]interface{}) []models.Vendor {
	out := []models.Vendor{}
	for _, item := range firstList(raw, "vendors", "recommended_vendors", "recommendedVendors", "suppliers") {
		var m map[string]interface{}
		switch v := item.(type) {
		case string:
			m = map[string]interface{}{"name": v}
		case map[string]interface{}:
			m = v
		default:
			continue
		}
		name := firstString(m, "name", "company", "vendor_name", "vendorName", "company_name")
		if name == "" {
			continue
		}
		specialties := stringList(firstValue(m, "specialties", "specialty", "products", "services"))
		if len(specialties) == 0 {
			specialties = append([]string(nil), defaultSpecialties...)
		}
		source := firstString(m, "source", "website", "url")
		if source == "" {
			source = defaultVendorSource
		}
		out = append(out, models.Vendor{
			Name:        name,
			Confidence:  parseConfidence(firstValue(m, "confidence", "score"), defaultVendorConfidence),
			Description: firstString(m, "description", "summary", "notes", "reason"),
			Specialties: specialties,
			Source:      source,
		})
	}
	return out
}

func elements(raw map[string]interface{}) []models.EstimationElement {
	items := firstList(raw, "estimation_elements", "estimationElements", "line_items", "lineItems")
	var existing []string
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			existing = append(existing, firstString(m, "code", "item_code", "itemCode"))
		}
	}
	alloc := newCodeAllocator(existing)

	out := []models.EstimationElement{}
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		description := firstString(m, "description", "name", "item", "item_name")
		category := snake(firstString(m, "category", "type", "device_type"))
		if category == "" {
			category = inferCategory(description)
		}
		code := strings.ToUpper(firstString(m, "code", "item_code", "itemCode"))
		if code == "" {
			code = alloc.next(category)
		}
		out = append(out, models.EstimationElement{
			Code:        code,
			Description: description,
			Qty:         parseQuantity(firstValue(m, "quantity", "qty", "count"), 1),
			SpecSummary: firstString(m, "spec_summary", "specSummary", "specifications", "specification", "specs"),
			UnitPrice:   parsePrice(firstValue(m, "unit_price", "unitPrice", "price", "cost")),
			Vendor:      firstString(m, "vendor", "manufacturer", "supplier"),
			Category:    category,
			Placement:   firstString(m, "placement", "location", "installation_location"),
			Compliance:  stringList(firstValue(m, "compliance", "compliance_standards", "standards")),
			Confidence:  parseConfidence(firstValue(m, "confidence"), defaultElementConfidence),
		})
	}
	return out
}

// inferCategory guesses a category from a description using the prefix
// table keys, falling back to "other".
func inferCategory(description string) string {
	d := snake(description)
	if d == "" {
		return defaultCategory
	}
	best := ""
	for key := range categoryPrefixes {
		if key != defaultCategory && strings.Contains(d, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return defaultCategory
	}
	return best
}

func materials(raw map[string]interface{}) []models.Material {
	out := []models.Material{}
	for _, item := range firstList(raw, "materials", "equipment", "components") {
		var m map[string]interface{}
		switch v := item.(type) {
		case string:
			m = map[string]interface{}{"name": v}
		case map[string]interface{}:
			m = v
		default:
			continue
		}
		name := firstString(m, "name", "item", "description", "type")
		if name == "" {
			continue
		}
		unit := firstString(m, "unit", "units", "uom")
		if unit == "" {
			unit = defaultMaterialUnit
		}
		out = append(out, models.Material{
			Name:          name,
			Quantity:      parseQuantity(firstValue(m, "quantity", "qty", "count"), 1),
			Unit:          unit,
			Specification: firstString(m, "specification", "spec", "specifications", "specSummary"),
			Category:      snake(firstString(m, "category")),
		})
	}
	return out
}

func projectDetails(raw map[string]interface{}, opts Options) models.ProjectDetails {
	src, ok := firstMap(raw, "project_details", "projectDetails")
	if !ok {
		src = raw
	}
	pd := models.ProjectDetails{
		Type:         firstString(src, "type", "project_type", "projectType"),
		Scope:        firstString(src, "scope", "project_scope", "description"),
		Requirements: stringList(firstValue(src, "requirements", "key_requirements")),
		Timeline:     firstString(src, "timeline", "schedule", "duration"),
	}
	if pd.Type == "" && ok {
		pd.Type = firstString(raw, "project_type", "projectType")
	}
	if pd.Type == "" {
		pd.Type = strings.TrimSpace(opts.ProjectType)
	}
	if pd.Type == "" {
		pd.Type = defaultProjectType
	}
	if pd.Scope == "" {
		pd.Scope = defaultProjectScope
	}
	if len(pd.Requirements) == 0 {
		pd.Requirements = append([]string(nil), defaultRequirements...)
	}
	if pd.Timeline == "" {
		pd.Timeline = defaultTimeline
	}
	return pd
}

func complianceRequirements(raw map[string]interface{}) []string {
	return stringList(firstValue(raw, "compliance_requirements", "complianceRequirements"), "code", "standard", "name", "description")
}

func estimatedBudget(raw map[string]interface{}) float64 {
	return parsePrice(firstValue(raw, "estimated_budget", "estimatedBudget", "budget"))
}

func firstValue(m map[string]interface{}, keys ...string) interface{} {
	v, _ := first(m, keys...)
	return v
}
