package normalize

import (
	"fmt"
	"strings"
)

const defaultCategory = "other"

// categoryPrefixes maps normalized categories to item code prefixes.
var categoryPrefixes = map[string]string{
	"smoke_detector":  "SD",
	"heat_detector":   "HD",
	"duct_detector":   "DD",
	"control_panel":   "FACP",
	"fire_alarm":      "FA",
	"pull_station":    "PS",
	"manual_station":  "PS",
	"horn_strobe":     "HS",
	"strobe":          "ST",
	"speaker":         "SPK",
	"sprinkler":       "SPR",
	"extinguisher":    "EXT",
	"emergency_light": "EL",
	"exit_sign":       "EX",
	"backbox":         "BB",
	"wiring":          "WR",
	"cable":           "WR",
	"conduit":         "CND",
	"module":          "MOD",
	"camera":          "CAM",
	"access_control":  "AC",
	"card_reader":     "CR",
	"intrusion":       "INT",
	"motion_sensor":   "MS",
	"labor":           "LAB",
	defaultCategory:   "ITEM",
}

// prefixFor finds the prefix for a category, matching table keys that are
// contained in the category (e.g. "photoelectric_smoke_detector").
func prefixFor(category string) string {
	if p, ok := categoryPrefixes[category]; ok {
		return p
	}
	best := ""
	for key := range categoryPrefixes {
		if key != defaultCategory && strings.Contains(category, key) && len(key) > len(best) {
			best = key
		}
	}
	if best != "" {
		return categoryPrefixes[best]
	}
	return categoryPrefixes[defaultCategory]
}

// codeAllocator hands out PREFIX-NNN codes in element order, skipping codes
// the extraction already used.
type codeAllocator struct {
	used     map[string]struct{}
	counters map[string]int
}

func newCodeAllocator(existing []string) *codeAllocator {
	a := &codeAllocator{used: make(map[string]struct{}, len(existing)), counters: make(map[string]int)}
	for _, c := range existing {
		if c != "" {
			a.used[strings.ToUpper(c)] = struct{}{}
		}
	}
	return a
}

func (a *codeAllocator) next(category string) string {
	prefix := prefixFor(category)
	for {
		a.counters[prefix]++
		code := fmt.Sprintf("%s-%03d", prefix, a.counters[prefix])
		if _, taken := a.used[code]; taken {
			continue
		}
		a.used[code] = struct{}{}
		return code
	}
}
