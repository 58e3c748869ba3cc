package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are an expert fire alarm and security systems estimator. " +
	"You read construction documents, specifications, floor plans and photographs " +
	"and produce a bill of materials for fire detection, notification and security equipment. " +
	"Always answer with a single JSON object and nothing else."

// responseSchemaHint is the JSON layout requested from the model.
const responseSchemaHint = `{
  "project_type": "string",
  "project_details": {"type": "string", "scope": "string", "requirements": ["string"], "timeline": "string"},
  "vendors": [{"name": "string", "confidence": 0.0, "description": "string", "specialties": ["string"], "source": "string"}],
  "estimation_elements": [{
    "code": "string (optional)",
    "description": "string",
    "quantity": 0,
    "spec_summary": "string",
    "unit_price": "$0.00",
    "vendor": "string",
    "category": "smoke_detector | heat_detector | control_panel | pull_station | horn_strobe | sprinkler | backbox | camera | access_control | other",
    "placement": "string",
    "compliance": ["string"],
    "confidence": 0.0
  }],
  "materials": [{"name": "string", "quantity": 0, "unit": "string", "specification": "string"}],
  "recommendations": ["string"],
  "compliance_requirements": ["string"],
  "estimated_budget": 0
}`

func buildUserPrompt(projectType, fileName, documentText string) string {
	var b strings.Builder
	projectType = strings.TrimSpace(projectType)
	if projectType == "" {
		projectType = "fire and security"
	}
	fmt.Fprintf(&b, "Analyze the attached %s project document", projectType)
	if fileName != "" {
		fmt.Fprintf(&b, " (%s)", fileName)
	}
	b.WriteString(" and extract every piece of fire alarm, detection, notification and security equipment it calls for.\n")
	b.WriteString("Estimate quantities from floor areas and device spacing rules when they are not stated, ")
	b.WriteString("give realistic US market unit prices, and list the codes and standards that apply.\n\n")
	b.WriteString("Respond with JSON using exactly this layout:\n")
	b.WriteString(responseSchemaHint)
	if documentText != "" {
		b.WriteString("\n\nDocument content:\n")
		b.WriteString(documentText)
	}
	return b.String()
}
