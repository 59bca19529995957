package itinerary

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultLat and DefaultLng replace coordinates that are missing or invalid.
// They point at New York City.
const (
	DefaultLat = 40.7128
	DefaultLng = -74.0060
)

// coordinateScale rounds coordinates to 6 decimal places (about 0.11m).
const coordinateScale = 1e6

// placeKeys are the per-day collections whose entries may carry coordinates.
var placeKeys = []string{"activities", "meals", "accommodation", "accommodations"}

// aliasPairs are top-level fields mirrored both ways.
var aliasPairs = [][2]string{
	{"overview", "summary"},
	{"tripName", "title"},
	{"budgetEstimate", "budget"},
}

// Normalize canonicalizes a parsed itinerary in place and returns it. It never
// rejects content: malformed fields are repaired or defaulted. Applying it to
// its own output is a no-op.
func Normalize(doc map[string]any) map[string]any {
	if doc == nil {
		doc = map[string]any{}
	}

	days, ok := doc["days"].([]any)
	if !ok {
		days = []any{}
	}
	doc["days"] = days

	deriveHeadings(doc)
	for _, pair := range aliasPairs {
		alias(doc, pair[0], pair[1])
	}
	aliasDates(doc)

	coerceCosts(doc)
	for _, d := range days {
		day, ok := d.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range placeKeys {
			forEachEntry(day[key], func(entry map[string]any) {
				if c, ok := entry["coordinates"]; ok {
					entry["coordinates"] = fixCoordinates(c)
				}
			})
		}
	}

	deriveBudget(doc, days)
	for _, key := range []string{"budget", "budgetEstimate"} {
		if b, ok := doc[key].(map[string]any); ok {
			alias(b, "transportation", "transport")
		}
	}
	return doc
}

// ParseAndNormalize runs Parse then Normalize.
func ParseAndNormalize(raw string) (map[string]any, error) {
	doc, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(doc), nil
}

func deriveHeadings(doc map[string]any) {
	dest, _ := doc["destination"].(string)
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return
	}
	if !present(doc, "summary") && !present(doc, "overview") {
		doc["summary"] = "Your personalized itinerary for " + dest
	}
	if !present(doc, "title") && !present(doc, "tripName") {
		doc["title"] = "Trip to " + dest
	}
}

func present(m map[string]any, key string) bool {
	v, ok := m[key]
	return ok && v != nil
}

// alias copies whichever of a or b is set onto the other.
func alias(m map[string]any, a, b string) {
	switch {
	case present(m, a) && !present(m, b):
		m[b] = m[a]
	case present(m, b) && !present(m, a):
		m[a] = m[b]
	}
}

func aliasDates(doc map[string]any) {
	dates, _ := doc["dates"].(map[string]any)
	if dates == nil {
		if !present(doc, "startDate") && !present(doc, "endDate") {
			return
		}
		dates = map[string]any{}
		doc["dates"] = dates
	}
	for _, pair := range [][2]string{{"start", "startDate"}, {"end", "endDate"}} {
		inner, outer := pair[0], pair[1]
		switch {
		case present(dates, inner) && !present(doc, outer):
			doc[outer] = dates[inner]
		case present(doc, outer) && !present(dates, inner):
			dates[inner] = doc[outer]
		}
	}
}

func forEachEntry(v any, fn func(map[string]any)) {
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				fn(m)
			}
		}
	case map[string]any:
		fn(t)
	}
}

func fixCoordinates(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	m["lat"] = coordinate(m["lat"], 90, DefaultLat)
	m["lng"] = coordinate(m["lng"], 180, DefaultLng)
	return m
}

func coordinate(v any, limit, fallback float64) float64 {
	f, ok := toNumber(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > limit {
		return fallback
	}
	return math.Round(f*coordinateScale) / coordinateScale
}

// coerceCosts walks the whole document and forces every cost and
// transportCost field to a number, defaulting to 0.
func coerceCosts(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if k == "cost" || k == "transportCost" {
				f, ok := toNumber(child)
				if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
					f = 0
				}
				t[k] = f
				continue
			}
			coerceCosts(child)
		}
	case []any:
		for _, child := range t {
			coerceCosts(child)
		}
	}
}

// deriveBudget fills in a budget from per-day costs when the model gave none.
func deriveBudget(doc map[string]any, days []any) {
	if present(doc, "budget") || present(doc, "budgetEstimate") || len(days) == 0 {
		return
	}

	var activities, food, lodging, transport float64
	for _, d := range days {
		day, ok := d.(map[string]any)
		if !ok {
			continue
		}
		forEachEntry(day["activities"], func(e map[string]any) {
			activities += number(e["cost"])
			transport += number(e["transportCost"])
		})
		forEachEntry(day["meals"], func(e map[string]any) {
			food += number(e["cost"])
			transport += number(e["transportCost"])
		})
		for _, key := range []string{"accommodation", "accommodations"} {
			forEachEntry(day[key], func(e map[string]any) {
				lodging += number(e["cost"])
			})
		}
		transport += number(day["transportCost"])
	}

	budget := map[string]any{
		"accommodation":  lodging,
		"food":           food,
		"activities":     activities,
		"transportation": transport,
		"total":          lodging + food + activities + transport,
	}
	doc["budget"] = budget
	doc["budgetEstimate"] = budget
}

func number(v any) float64 {
	f, _ := v.(float64)
	return f
}

// toNumber accepts JSON numbers and numeric strings such as "20", "$1,200"
// or "45.5 EUR".
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		return parseLeadingNumber(t)
	}
	return 0, false
}

func parseLeadingNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£¥ ")
	s = strings.ReplaceAll(s, ",", "")
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || ((c == '-' || c == '+') && end == 0) {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
