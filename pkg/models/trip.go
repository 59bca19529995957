package models

// TripRequest is the survey input a generation job is built from.
type TripRequest struct {
	Destination string   `json:"destination"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Purpose     string   `json:"purpose,omitempty"`
	Budget      string   `json:"budget,omitempty"`
	Travelers   int      `json:"travelers,omitempty"`
	Preferences []string `json:"preferences,omitempty"`
}
