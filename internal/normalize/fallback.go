package normalize

import "firecost/internal/models"

// Canned data substituted for an empty extraction. Any use sets
// Analysis.FallbackUsed so callers can tell it apart from real output.

func fallbackElements() []models.EstimationElement {
	return []models.EstimationElement{
		{
			Code:        "SD-001",
			Description: "Photoelectric Smoke Detector",
			Qty:         10,
			SpecSummary: "Addressable photoelectric smoke detector, UL 268 listed",
			UnitPrice:   45.00,
			Vendor:      "Fire Safety Solutions Inc.",
			Category:    "smoke_detector",
			Placement:   "Ceiling mounted, per NFPA 72 spacing",
			Compliance:  []string{"NFPA 72", "UL 268"},
			Confidence:  0.5,
		},
		{
			Code:        "FACP-001",
			Description: "Fire Alarm Control Panel",
			Qty:         1,
			SpecSummary: "Addressable fire alarm control panel with battery backup",
			UnitPrice:   1250.00,
			Vendor:      "Fire Safety Solutions Inc.",
			Category:    "control_panel",
			Placement:   "Main electrical room",
			Compliance:  []string{"NFPA 72", "UL 864"},
			Confidence:  0.5,
		},
		{
			Code:        "BB-001",
			Description: "Device Backbox",
			Qty:         10,
			SpecSummary: "4-inch square backbox for detector mounting",
			UnitPrice:   8.50,
			Vendor:      "SecureTech Systems",
			Category:    "backbox",
			Placement:   "Behind each ceiling device",
			Compliance:  []string{"NEC"},
			Confidence:  0.5,
		},
	}
}

func fallbackVendors() []models.Vendor {
	return []models.Vendor{
		{
			Name:        "Fire Safety Solutions Inc.",
			Confidence:  0.5,
			Description: "Full-service fire alarm and detection equipment supplier",
			Specialties: []string{"Fire Alarm Systems", "Smoke Detection", "Control Panels"},
			Source:      "Default",
		},
		{
			Name:        "SecureTech Systems",
			Confidence:  0.5,
			Description: "Security and life-safety systems integrator",
			Specialties: []string{"Security Systems", "Access Control", "Installation Hardware"},
			Source:      "Default",
		},
	}
}
