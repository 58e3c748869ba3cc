package normalize

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"firecost/internal/models"
)

const sampleExtraction = `{
  "project_type": "Office fire alarm retrofit",
  "recommended_vendors": [
    {"company": "Acme Fire Supply", "confidence": 92, "summary": "Regional distributor", "specialties": ["Detectors"], "website": "acmefire.example"},
    "Blue Ridge Alarm"
  ],
  "estimation_elements": [
    {"description": "Photoelectric smoke detector", "quantity": "24 units", "unit_price": "$45.50 each", "category": "Smoke Detector", "vendor": "Acme Fire Supply", "compliance": "NFPA 72"},
    {"description": "Heat detector", "qty": 6, "price": 38, "category": "heat_detector", "code": "hd-001"},
    {"description": "Smoke detector, duct", "quantity": 2, "unit_price": "$1,210.00", "category": "smoke_detector"},
    {"description": "Misc hardware"}
  ],
  "equipment": [
    {"name": "18/2 FPLP cable", "quantity": 1500, "unit": "ft"},
    "Ceiling backboxes"
  ],
  "scope": "Three floors, open plan",
  "timeline": "6 weeks",
  "recommendations": ["Add CO detection", {"text": "Verify panel capacity"}],
  "compliance_requirements": ["NFPA 72", {"code": "IBC 907"}],
  "estimated_budget": "$18,500"
}`

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func roundTrip(t *testing.T, a models.Analysis) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return decode(t, string(b))
}

func TestNormalizeMapsRecommendedVendors(t *testing.T) {
	got := Normalize(decode(t, sampleExtraction), Options{})
	want := []models.Vendor{
		{Name: "Acme Fire Supply", Confidence: 0.92, Description: "Regional distributor", Specialties: []string{"Detectors"}, Source: "acmefire.example"},
		{Name: "Blue Ridge Alarm", Confidence: 0.8, Description: "", Specialties: []string{"Fire Safety", "Security Systems"}, Source: "AI Analysis"},
	}
	if diff := cmp.Diff(want, got.Vendors); diff != "" {
		t.Fatalf("vendors mismatch (-want +got):\n%s", diff)
	}
	if got.FallbackUsed {
		t.Fatalf("fallback should not be used for a populated extraction")
	}
}

func TestNormalizeElements(t *testing.T) {
	got := Normalize(decode(t, sampleExtraction), Options{})
	if len(got.EstimationElements) != 4 {
		t.Fatalf("expected 4 elements, got %d", len(got.EstimationElements))
	}
	first := got.EstimationElements[0]
	if first.Code != "SD-001" || first.Qty != 24 || first.UnitPrice != 45.50 || first.Category != "smoke_detector" {
		t.Fatalf("first element mismatch: %+v", first)
	}
	if diff := cmp.Diff([]string{"NFPA 72"}, first.Compliance); diff != "" {
		t.Fatalf("compliance mismatch: %s", diff)
	}
	if got.EstimationElements[1].Code != "HD-001" || got.EstimationElements[1].UnitPrice != 38 {
		t.Fatalf("explicit code should be kept: %+v", got.EstimationElements[1])
	}
	if got.EstimationElements[2].Code != "SD-002" || got.EstimationElements[2].UnitPrice != 1210 {
		t.Fatalf("second smoke detector mismatch: %+v", got.EstimationElements[2])
	}
	misc := got.EstimationElements[3]
	if misc.Code != "ITEM-001" || misc.Qty != 1 || misc.UnitPrice != 0 || misc.Category != "other" {
		t.Fatalf("defaults not applied: %+v", misc)
	}
}

func TestNormalizeCodesAreDeterministic(t *testing.T) {
	raw := sampleExtraction
	a := Normalize(decode(t, raw), Options{})
	b := Normalize(decode(t, raw), Options{})
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("normalization not deterministic:\n%s", diff)
	}
}

func TestCodeAllocatorSkipsExistingCodes(t *testing.T) {
	raw := decode(t, `{"estimation_elements": [
		{"description": "a", "category": "smoke_detector"},
		{"description": "b", "category": "smoke_detector", "code": "SD-001"}
	], "vendors": ["v"]}`)
	got := Normalize(raw, Options{})
	if got.EstimationElements[0].Code != "SD-002" || got.EstimationElements[1].Code != "SD-001" {
		t.Fatalf("codes collide: %q %q", got.EstimationElements[0].Code, got.EstimationElements[1].Code)
	}
}

func TestNormalizeMaterialsAndDetails(t *testing.T) {
	got := Normalize(decode(t, sampleExtraction), Options{ProjectType: "ignored"})
	wantMaterials := []models.Material{
		{Name: "18/2 FPLP cable", Quantity: 1500, Unit: "ft"},
		{Name: "Ceiling backboxes", Quantity: 1, Unit: "ea"},
	}
	if diff := cmp.Diff(wantMaterials, got.Materials); diff != "" {
		t.Fatalf("materials mismatch (-want +got):\n%s", diff)
	}
	wantDetails := models.ProjectDetails{
		Type:         "Office fire alarm retrofit",
		Scope:        "Three floors, open plan",
		Requirements: []string{"NFPA 72 compliance"},
		Timeline:     "6 weeks",
	}
	if diff := cmp.Diff(wantDetails, got.ProjectDetails); diff != "" {
		t.Fatalf("details mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Add CO detection", "Verify panel capacity"}, got.Recommendations); diff != "" {
		t.Fatalf("recommendations mismatch: %s", diff)
	}
	if diff := cmp.Diff([]string{"NFPA 72", "IBC 907"}, got.ComplianceRequirements); diff != "" {
		t.Fatalf("compliance requirements mismatch: %s", diff)
	}
	if got.EstimatedBudget != 18500 {
		t.Fatalf("budget mismatch: %v", got.EstimatedBudget)
	}
}

func TestNormalizeProjectTypeOption(t *testing.T) {
	got := Normalize(decode(t, `{"vendors": ["v"], "estimation_elements": [{"description": "x"}]}`), Options{ProjectType: "warehouse"})
	if got.ProjectDetails.Type != "warehouse" {
		t.Fatalf("expected project type from options, got %q", got.ProjectDetails.Type)
	}
}

func TestNormalizeFallback(t *testing.T) {
	got := Normalize(decode(t, `{"vendors": [], "estimation_elements": []}`), Options{})
	if !got.FallbackUsed {
		t.Fatalf("expected fallbackUsed")
	}
	if len(got.EstimationElements) != 3 || len(got.Vendors) != 2 {
		t.Fatalf("expected 3 canned elements and 2 vendors, got %d/%d", len(got.EstimationElements), len(got.Vendors))
	}
	codes := []string{got.EstimationElements[0].Code, got.EstimationElements[1].Code, got.EstimationElements[2].Code}
	if diff := cmp.Diff([]string{"SD-001", "FACP-001", "BB-001"}, codes); diff != "" {
		t.Fatalf("canned codes mismatch: %s", diff)
	}
	if got.Vendors[0].Name != "Fire Safety Solutions Inc." || got.Vendors[1].Name != "SecureTech Systems" {
		t.Fatalf("canned vendors mismatch: %+v", got.Vendors)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		sampleExtraction,
		`{}`,
		`{"vendors": [], "estimation_elements": []}`,
		`{"project_details": {"type": "Hospital", "requirements": "NFPA 101"}, "components": ["Horn strobe"], "estimation_elements": [{"name": "Horn strobe", "quantity": 0, "unit_price": -4}], "vendors": [{"name": "X", "confidence": "bad"}]}`,
	}
	for _, in := range inputs {
		once := Normalize(decode(t, in), Options{ProjectType: "office"})
		twice := Normalize(roundTrip(t, once), Options{ProjectType: "office"})
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Fatalf("normalize not idempotent for %s (-once +twice):\n%s", in, diff)
		}
	}
}

func TestNormalizeOutputMatchesSchema(t *testing.T) {
	for _, in := range []string{sampleExtraction, `{}`, `{"vendors": "nonsense", "estimation_elements": 7}`} {
		if err := Validate(Normalize(decode(t, in), Options{})); err != nil {
			t.Fatalf("schema validation failed for %s: %v", in, err)
		}
	}
	if err := Validate(models.Analysis{}); err == nil {
		t.Fatalf("expected zero analysis to fail validation")
	}
}

func TestNormalizeJSONRejectsNonObject(t *testing.T) {
	if _, err := NormalizeJSON([]byte("not json"), Options{}); err == nil {
		t.Fatalf("expected error for non-JSON content")
	}
	if _, err := NormalizeJSON([]byte(`[1,2]`), Options{}); err == nil {
		t.Fatalf("expected error for non-object content")
	}
}

func TestParsePrice(t *testing.T) {
	cases := map[string]float64{
		"$45.00":         45,
		"1,250.99 each":  1250.99,
		"USD 12":         12,
		"call for price": 0,
		"":               0,
		"$ 8.5 per box":  8.5,
		"approx 3 x $45": 45,
		"-45":            0,
		" -$45.00":       0,
	}
	for in, want := range cases {
		if got := parsePrice(in); got != want {
			t.Fatalf("parsePrice(%q) = %v, want %v", in, got, want)
		}
	}
	if got := parsePrice(float64(-45)); got != 0 {
		t.Fatalf("negative float price = %v, want 0", got)
	}
}
