// Package agents manages the backend's classification and analysis agent
// configurations.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/notify"
)

// Type is the pipeline an agent belongs to.
type Type string

const (
	TypeClassification Type = "classification"
	TypeAnalysis       Type = "analysis"
)

// ParseType validates a user-supplied agent type.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeClassification, TypeAnalysis:
		return t, nil
	}
	return "", fmt.Errorf("unknown agent type %q (want classification or analysis)", s)
}

// KnowledgeBaseItem is reference material attached to an analysis agent.
type KnowledgeBaseItem struct {
	ID           string `json:"_id,omitempty"`
	JSONData     string `json:"json_data"`
	MainCategory string `json:"main_category"`
	SubCategory  string `json:"sub_category,omitempty"`
	Topic        string `json:"topic"`
}

// Agent is an agent configuration as the backend reports it.
type Agent struct {
	ID               string              `json:"_id"`
	Name             string              `json:"agent_name"`
	Description      string              `json:"description,omitempty"`
	Type             Type                `json:"type"`
	Criteria         string              `json:"criteria,omitempty"`
	Guidelines       string              `json:"guidelines,omitempty"`
	Status           bool                `json:"status"`
	EvaluatorsPrompt string              `json:"evaluators_prompt,omitempty"`
	ClassifierPrompt string              `json:"classifier_prompt,omitempty"`
	KnowledgeBase    []KnowledgeBaseItem `json:"knowledge_base,omitempty"`
}

// Draft is a new agent. Classification agents need ClassifierPrompt;
// analysis agents need Criteria.
type Draft struct {
	Name             string `json:"agent_name"`
	Description      string `json:"description,omitempty"`
	Criteria         string `json:"criteria,omitempty"`
	Guidelines       string `json:"guidelines,omitempty"`
	Status           bool   `json:"status"`
	EvaluatorsPrompt string `json:"evaluators_prompt,omitempty"`
	ClassifierPrompt string `json:"classifier_prompt,omitempty"`
}

// Update changes selected fields of an agent; nil fields are left alone.
type Update struct {
	Name             *string `json:"agent_name,omitempty"`
	Description      *string `json:"description,omitempty"`
	Criteria         *string `json:"criteria,omitempty"`
	Guidelines       *string `json:"guidelines,omitempty"`
	Status           *bool   `json:"status,omitempty"`
	EvaluatorsPrompt *string `json:"evaluators_prompt,omitempty"`
	ClassifierPrompt *string `json:"classifier_prompt,omitempty"`
}

type createRequest struct {
	Draft
	Type          Type                `json:"type"`
	KnowledgeBase []KnowledgeBaseItem `json:"knowledge_base,omitempty"`
}

// Config configures a Store.
type Config struct {
	// Client is the backend REST client (required)
	Client *api.Client
	// Notifier receives user-facing messages (optional)
	Notifier notify.Notifier
	// Logger is the structured logger to use (optional)
	Logger *slog.Logger
}

// Store holds the agent list and performs agent CRUD. Every write
// refetches the list.
type Store struct {
	client   *api.Client
	notifier notify.Notifier
	logger   *slog.Logger

	mu     sync.RWMutex
	agents []Agent
}

// New creates an empty Store.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	return &Store{
		client:   cfg.Client,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}
}

// Fetch reloads the agent list from the backend.
func (s *Store) Fetch(ctx context.Context) error {
	var resp struct {
		Agents []Agent `json:"agents"`
	}
	if err := s.client.Get(ctx, "/agents/", &resp); err != nil {
		return fmt.Errorf("failed to fetch agents: %w", err)
	}

	s.mu.Lock()
	s.agents = resp.Agents
	s.mu.Unlock()
	s.logger.Debug("agents fetched", "count", len(resp.Agents))
	return nil
}

// List returns the agents sorted by type then name.
func (s *Store) List() []Agent {
	s.mu.RLock()
	out := append([]Agent(nil), s.agents...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ByType returns the agents of type t.
func (s *Store) ByType(t Type) []Agent {
	var out []Agent
	for _, a := range s.List() {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// Get returns the agent with the given id from the last fetch.
func (s *Store) Get(id string) (Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// Clear forgets the agent list. It runs on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	s.agents = nil
	s.mu.Unlock()
}

// Create adds an agent of type t.
func (s *Store) Create(ctx context.Context, d Draft, t Type) (*Agent, error) {
	return s.create(ctx, createRequest{Draft: d, Type: t})
}

// CreateWithKnowledgeBase adds an agent together with its knowledge base.
func (s *Store) CreateWithKnowledgeBase(ctx context.Context, d Draft, t Type, items []KnowledgeBaseItem) (*Agent, error) {
	if items == nil {
		items = []KnowledgeBaseItem{}
	}
	return s.create(ctx, createRequest{Draft: d, Type: t, KnowledgeBase: items})
}

func (s *Store) create(ctx context.Context, req createRequest) (*Agent, error) {
	if err := validate("draft", req); err != nil {
		s.notifier.Notify(notify.LevelError, err.Error())
		return nil, err
	}

	var created Agent
	if err := s.client.Post(ctx, "/agents/", req, &created); err != nil {
		s.notifier.Notify(notify.LevelError, api.Detail(err, "Failed to create agent"))
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	s.logger.Info("agent created", "agent_id", created.ID, "type", string(req.Type))
	s.notifier.Notify(notify.LevelSuccess, "Agent created")
	return &created, s.Fetch(ctx)
}

// Update changes an agent's fields.
func (s *Store) Update(ctx context.Context, id string, u Update) (*Agent, error) {
	if err := validate("update", u); err != nil {
		s.notifier.Notify(notify.LevelError, err.Error())
		return nil, err
	}

	var updated Agent
	if err := s.client.Put(ctx, api.Pathf("/agents/%s", id), u, &updated); err != nil {
		s.notifier.Notify(notify.LevelError, api.Detail(err, "Failed to update agent"))
		return nil, fmt.Errorf("failed to update agent: %w", err)
	}
	s.notifier.Notify(notify.LevelSuccess, "Agent updated")
	return &updated, s.Fetch(ctx)
}

// Delete removes an agent.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Delete(ctx, api.Pathf("/agents/%s", id), nil); err != nil {
		s.notifier.Notify(notify.LevelError, api.Detail(err, "Failed to delete agent"))
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	s.logger.Info("agent deleted", "agent_id", id)
	s.notifier.Notify(notify.LevelSuccess, "Agent deleted")
	return s.Fetch(ctx)
}

// PowerToggle enables or disables an agent.
func (s *Store) PowerToggle(ctx context.Context, id string, enabled bool) (*Agent, error) {
	var updated Agent
	body := map[string]bool{"status": enabled}
	if err := s.client.Patch(ctx, api.Pathf("/agents/%s", id), body, &updated); err != nil {
		s.notifier.Notify(notify.LevelError, api.Detail(err, "Failed to toggle agent"))
		return nil, fmt.Errorf("failed to toggle agent: %w", err)
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	s.notifier.Notify(notify.LevelSuccess, "Agent "+state)
	return &updated, s.Fetch(ctx)
}
