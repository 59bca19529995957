package itinerary

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/tripplanner/pkg/models"
	"github.com/stretchr/testify/assert"
)

func validRequest() models.TripRequest {
	return models.TripRequest{
		Destination: "Paris",
		StartDate:   "2025-06-01",
		EndDate:     "2025-06-03",
		Purpose:     "leisure",
		Budget:      "moderate",
		Travelers:   2,
		Preferences: []string{"museums", "food"},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(validRequest()))

	tests := map[string]func(*models.TripRequest){
		"missing destination": func(r *models.TripRequest) { r.Destination = "  " },
		"bad start":           func(r *models.TripRequest) { r.StartDate = "June 1" },
		"bad end":             func(r *models.TripRequest) { r.EndDate = "" },
		"end before start":    func(r *models.TripRequest) { r.EndDate = "2025-05-30" },
		"too long":            func(r *models.TripRequest) { r.EndDate = "2025-08-01" },
		"negative travelers":  func(r *models.TripRequest) { r.Travelers = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			assert.ErrorIs(t, Validate(req), ErrInvalidRequest)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	system, user := BuildPrompt(validRequest())

	assert.Contains(t, system, "JSON")
	assert.True(t, strings.HasPrefix(user, "Plan a 3-day trip to Paris from 2025-06-01 to 2025-06-03."))
	assert.Contains(t, user, "Purpose of the trip: leisure.")
	assert.Contains(t, user, "Budget level: moderate.")
	assert.Contains(t, user, "Number of travelers: 2.")
	assert.Contains(t, user, "museums, food")
}

func TestBuildPrompt_OmitsEmptyFields(t *testing.T) {
	_, user := BuildPrompt(models.TripRequest{Destination: "Rome", StartDate: "2025-01-01", EndDate: "2025-01-01"})
	assert.Contains(t, user, "1-day trip to Rome")
	assert.NotContains(t, user, "Purpose")
	assert.NotContains(t, user, "preferences")
}
