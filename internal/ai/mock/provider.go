package mock

import (
	"context"
	"fmt"
	"regexp"

	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing and AI_PROVIDER=mock.
type MockProvider struct {
	Name_        string
	Model_       string
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (string, error)
}

func (m *MockProvider) Name() string  { return m.Name_ }
func (m *MockProvider) Model() string { return m.Model_ }

func (m *MockProvider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

var destinationRe = regexp.MustCompile(`trip to (.+?) from \d{4}-`)

// NewMockProvider returns a MockProvider that answers with a small one-day
// itinerary for the destination named in the prompt.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, req models.CompletionRequest) (string, error) {
			destination := "Somewhere"
			if m := destinationRe.FindStringSubmatch(req.UserPrompt); m != nil {
				destination = m[1]
			}
			return fmt.Sprintf(`{
  "destination": %q,
  "days": [
    {
      "day": 1,
      "activities": [
        {"title": "Walking tour", "cost": "25", "coordinates": {"lat": "40.7128", "lng": "-74.0060"}}
      ],
      "meals": [
        {"name": "Local bistro", "cost": 30}
      ]
    }
  ]
}`, destination), nil
		},
	}
}

// NewStaticProvider returns a MockProvider that always answers with text.
func NewStaticProvider(text string) *MockProvider {
	return &MockProvider{
		Name_:  "mock-static",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (string, error) {
			return text, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_:  "mock-failing",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock-timeout",
		Model_: "mock-v1",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
