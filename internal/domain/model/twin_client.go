package model

import "context"

// TwinClient talks to the external prediction service.
type TwinClient interface {
	// GetLocalities returns the Country → State → District → City hierarchy.
	GetLocalities(ctx context.Context) (Hierarchy, error)

	// GetBaseline returns the indicator snapshot of a city.
	GetBaseline(ctx context.Context, locality string) (*Baseline, error)

	Predict(ctx context.Context, req PredictionRequest) (*PredictionResult, error)

	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
