package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reDollar  = regexp.MustCompile(`\$\s*(\d[\d,]*(?:\.\d+)?)`)
	reAmount  = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	reInteger = regexp.MustCompile(`-?\d[\d,]*`)
)

// first returns the first non-nil value among keys.
func first(m map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// firstString returns the first non-blank string among keys. Numbers are
// formatted so a numeric field still yields text.
func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}

func firstMap(m map[string]interface{}, keys ...string) (map[string]interface{}, bool) {
	for _, k := range keys {
		if v, ok := m[k].(map[string]interface{}); ok {
			return v, true
		}
	}
	return nil, false
}

func firstList(m map[string]interface{}, keys ...string) []interface{} {
	for _, k := range keys {
		if v, ok := m[k].([]interface{}); ok && len(v) > 0 {
			return v
		}
	}
	return nil
}

// parseQuantity reads counts like 12, 12.0, "12", "12 units". Missing or
// non-positive values become def.
func parseQuantity(v interface{}, def int) int {
	n := def
	switch t := v.(type) {
	case float64:
		n = int(math.Round(t))
	case int:
		n = t
	case int64:
		n = int(t)
	case string:
		match := reInteger.FindString(t)
		if match == "" {
			return def
		}
		parsed, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
		if err != nil {
			return def
		}
		n = parsed
	}
	if n < 1 {
		return def
	}
	return n
}

// parsePrice reads amounts like 45, "45.00", "$1,250.00 each".
func parsePrice(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return t
	case int:
		if t < 0 {
			return 0
		}
		return float64(t)
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "-") {
			return 0
		}
		// a $-prefixed amount wins over counts earlier in the text
		amount := ""
		if m := reDollar.FindStringSubmatch(s); m != nil {
			amount = m[1]
		} else {
			amount = reAmount.FindString(s)
		}
		if amount == "" {
			return 0
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(amount, ",", ""), 64)
		if err != nil {
			return 0
		}
		return f
	case map[string]interface{}:
		if inner, ok := first(t, "total", "amount", "value", "max", "estimate"); ok {
			return parsePrice(inner)
		}
	}
	return 0
}

// parseConfidence accepts 0..1 floats or 0..100 percentages.
func parseConfidence(v interface{}, def float64) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(t), "%")
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}
	if f > 1 && f <= 100 {
		f = f / 100
	}
	if f < 0 || f > 1 || math.IsNaN(f) {
		return def
	}
	return f
}

// stringList flattens a list (or single value) into trimmed strings. Objects
// contribute their first textual field.
func stringList(v interface{}, objectKeys ...string) []string {
	out := []string{}
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch t := v.(type) {
	case string:
		add(t)
	case []interface{}:
		for _, item := range t {
			switch it := item.(type) {
			case string:
				add(it)
			case map[string]interface{}:
				add(firstString(it, objectKeys...))
			case float64, int:
				add(fmt.Sprint(it))
			}
		}
	}
	return out
}

// snake lower-cases s and joins words with underscores.
func snake(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), "_")
}
