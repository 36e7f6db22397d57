package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"twin_service/internal/domain/model"
	"twin_service/internal/domain/repository"
)

// Service hands out orchestrators and chat sessions that share one twin
// client, recorder and logger.
type Service struct {
	client   model.TwinClient
	recorder repository.ScenarioRecorder
	logger   *zap.Logger
	opts     []Option
}

// NewService builds a Service. recorder may be nil; opts are applied to every
// orchestrator it creates.
func NewService(client model.TwinClient, recorder repository.ScenarioRecorder, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:   client,
		recorder: recorder,
		logger:   logger,
		opts:     opts,
	}
}

func (s *Service) Localities(ctx context.Context) (model.Hierarchy, error) {
	h, err := s.client.GetLocalities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get localities: %w", err)
	}
	return h, nil
}

// Resolve checks p against the hierarchy. When only City is set it is looked
// up by name, otherwise every level must exist under the one above it.
func (s *Service) Resolve(ctx context.Context, p model.Path) (model.Path, error) {
	h, err := s.Localities(ctx)
	if err != nil {
		return model.Path{}, err
	}

	if p.Country == "" && p.State == "" && p.District == "" {
		found, ok := h.Find(p.City)
		if !ok {
			return model.Path{}, fmt.Errorf("%w: city %q", model.ErrUnknownLocality, p.City)
		}
		return found, nil
	}

	sel := model.NewSelection(h)
	if err := sel.SetCountry(p.Country); err != nil {
		return model.Path{}, err
	}
	if err := sel.SetState(p.State); err != nil {
		return model.Path{}, err
	}
	if err := sel.SetDistrict(p.District); err != nil {
		return model.Path{}, err
	}
	if err := sel.SetCity(p.City); err != nil {
		return model.Path{}, err
	}
	if sel.City() == "" {
		return model.Path{}, fmt.Errorf("%w: incomplete path, choose one of %v", model.ErrUnknownLocality, sel.Options())
	}
	return sel.Path(), nil
}

func (s *Service) Baseline(ctx context.Context, locality string) (*model.Baseline, error) {
	b, err := s.client.GetBaseline(ctx, locality)
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline for %s: %w", locality, err)
	}
	return b, nil
}

// NewOrchestrator returns a fresh orchestrator. The caller must Close it.
func (s *Service) NewOrchestrator(opts ...Option) *Orchestrator {
	all := []Option{WithLogger(s.logger)}
	if s.recorder != nil {
		all = append(all, WithRecorder(s.recorder))
	}
	all = append(all, s.opts...)
	all = append(all, opts...)
	return NewOrchestrator(s.client, all...)
}

func (s *Service) NewChatSession() *ChatSession {
	return NewChatSession(s.client, s.logger)
}
