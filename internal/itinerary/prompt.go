package itinerary

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

const dateLayout = "2006-01-02"

// maxTripDays bounds the date range a single request may cover.
const maxTripDays = 30

// ErrInvalidRequest wraps every validation failure of a TripRequest.
var ErrInvalidRequest = errors.New("invalid trip request")

const systemPrompt = `You are an expert travel planner. Respond with a single JSON object and nothing else.
The object must contain: "destination", "title", "summary", "startDate", "endDate",
"budget" (accommodation, food, activities, transportation, total as numbers) and
"days": an array where each day has "day" (number), "date", "activities", "meals"
and "accommodation". Every activity, meal and accommodation has "title", "description",
"cost" (number, local currency), "transportCost" (number) and "coordinates" with
numeric "lat" and "lng". Do not include comments or trailing commas.`

// Validate checks the fields a prompt cannot be built without.
func Validate(req models.TripRequest) error {
	if strings.TrimSpace(req.Destination) == "" {
		return fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return fmt.Errorf("%w: startDate must be YYYY-MM-DD", ErrInvalidRequest)
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return fmt.Errorf("%w: endDate must be YYYY-MM-DD", ErrInvalidRequest)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: endDate is before startDate", ErrInvalidRequest)
	}
	if days := tripDays(start, end); days > maxTripDays {
		return fmt.Errorf("%w: trips are limited to %d days, got %d", ErrInvalidRequest, maxTripDays, days)
	}
	if req.Travelers < 0 {
		return fmt.Errorf("%w: travelers must not be negative", ErrInvalidRequest)
	}
	return nil
}

// BuildPrompt renders the system and user prompts for a validated request.
func BuildPrompt(req models.TripRequest) (system, user string) {
	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)

	var b strings.Builder
	fmt.Fprintf(&b, "Plan a %d-day trip to %s from %s to %s.\n",
		tripDays(start, end), strings.TrimSpace(req.Destination), req.StartDate, req.EndDate)
	if req.Purpose != "" {
		fmt.Fprintf(&b, "Purpose of the trip: %s.\n", req.Purpose)
	}
	if req.Budget != "" {
		fmt.Fprintf(&b, "Budget level: %s.\n", req.Budget)
	}
	if req.Travelers > 0 {
		fmt.Fprintf(&b, "Number of travelers: %d.\n", req.Travelers)
	}
	if len(req.Preferences) > 0 {
		fmt.Fprintf(&b, "Traveler preferences: %s.\n", strings.Join(req.Preferences, ", "))
	}
	b.WriteString("Include one entry in \"days\" per calendar day, in order, with realistic costs and accurate coordinates.")
	return systemPrompt, b.String()
}

func tripDays(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}
