// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/keepsake-dev/keepsake/internal/memory"
	"github.com/keepsake-dev/keepsake/internal/store"
	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Memory endpoints
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-memory",
		Method:        http.MethodPost,
		Path:          "/api/v1/memories",
		Summary:       "Record a new memory",
		Tags:          []string{"memories"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateMemory)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-memories",
		Method:      http.MethodGet,
		Path:        "/api/v1/memories",
		Summary:     "List memories with filters",
		Tags:        []string{"memories"},
	}, s.handleListMemories)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-memory",
		Method:      http.MethodGet,
		Path:        "/api/v1/memories/{id}",
		Summary:     "Get a memory by id",
		Tags:        []string{"memories"},
	}, s.handleGetMemory)

	huma.Register(s.api, huma.Operation{
		OperationID:   "forget-memory",
		Method:        http.MethodDelete,
		Path:          "/api/v1/memories/{id}",
		Summary:       "Forget a memory",
		Tags:          []string{"memories"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleForgetMemory)

	huma.Register(s.api, huma.Operation{
		OperationID: "search-memories",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Semantic search over memories",
		Tags:        []string{"search"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "recent-memories",
		Method:      http.MethodGet,
		Path:        "/api/v1/recent",
		Summary:     "List the most recent memories",
		Tags:        []string{"search"},
	}, s.handleRecent)

	// Session endpoints
	huma.Register(s.api, huma.Operation{
		OperationID:   "start-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Start a session",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
	}, s.handleStartSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get session details",
		Tags:        []string{"sessions"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "end-session",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/end",
		Summary:     "End a session",
		Tags:        []string{"sessions"},
	}, s.handleEndSession)

	// System endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "memory-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Memory statistics",
		Tags:        []string{"system"},
	}, s.handleStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "reconcile",
		Method:      http.MethodPost,
		Path:        "/api/v1/reconcile",
		Summary:     "Run an index reconciliation sweep",
		Tags:        []string{"system"},
	}, s.handleReconcile)
}

// apiError converts a coded service error into a huma status error.
func apiError(err error) error {
	return huma.NewError(kerr.HTTPStatus(err), err.Error())
}

// --- Request/Response types for huma ---

type createMemoryInput struct {
	Body struct {
		SessionID string `json:"session_id,omitempty" doc:"Existing session to attach to; empty starts one"`

		Interface       string `json:"interface" minLength:"1" doc:"Surface the experience came through"`
		Context         string `json:"context,omitempty"`
		WithWhom        string `json:"with_whom,omitempty"`
		WhatHappened    string `json:"what_happened" minLength:"1" doc:"Narrative of the experience"`
		TextContent     string `json:"text_content,omitempty" doc:"Text to embed; defaults to what_happened"`
		ExperienceType  string `json:"experience_type" minLength:"1"`
		DurationSeconds int    `json:"duration_seconds,omitempty" minimum:"0"`

		EmotionPrimary   string   `json:"emotion_primary" minLength:"1"`
		EmotionIntensity float64  `json:"emotion_intensity" minimum:"0" maximum:"1"`
		EmotionWhy       string   `json:"emotion_why,omitempty"`
		EmotionSecondary []string `json:"emotion_secondary,omitempty"`

		Importance        float64            `json:"importance" minimum:"0" maximum:"1"`
		ImportanceReasons []string           `json:"importance_reasons,omitempty"`
		Annotations       []store.Annotation `json:"annotations,omitempty"`

		VisualPath string `json:"visual_path,omitempty"`
		AudioPath  string `json:"audio_path,omitempty"`
		VideoPath  string `json:"video_path,omitempty"`

		PrivacyRealm string `json:"privacy_realm,omitempty" enum:"public,private" doc:"Defaults to private"`
	}
}
type createMemoryOutput struct {
	Body MemoryView
}

type listMemoriesInput struct {
	Interface      string  `query:"interface"`
	Context        string  `query:"context"`
	Emotion        string  `query:"emotion"`
	ExperienceType string  `query:"experience_type"`
	WithWhom       string  `query:"with_whom"`
	SessionID      string  `query:"session_id"`
	MinImportance  float64 `query:"min_importance" minimum:"0" maximum:"1"`
	Limit          int     `query:"limit" minimum:"0" maximum:"500"`
	Offset         int     `query:"offset" minimum:"0"`
}
type listMemoriesOutput struct {
	Body struct {
		Memories []MemoryView `json:"memories"`
		Total    int64        `json:"total"`
	}
}

type memoryIDInput struct {
	ID string `path:"id"`
}
type getMemoryOutput struct {
	Body MemoryView
}

type searchInput struct {
	Body struct {
		Query         string  `json:"query" minLength:"1" doc:"Free-text query"`
		Limit         int     `json:"limit,omitempty" minimum:"0" maximum:"500"`
		Interface     string  `json:"interface,omitempty"`
		PrivacyRealm  string  `json:"privacy_realm,omitempty" enum:"public,private"`
		MinImportance float64 `json:"min_importance,omitempty" minimum:"0" maximum:"1"`
	}
}
type searchHit struct {
	Memory MemoryView `json:"memory"`
	Score  float64    `json:"score"`
}
type searchOutput struct {
	Body struct {
		Results []searchHit `json:"results"`
	}
}

type recentInput struct {
	Interface string `query:"interface"`
	Limit     int    `query:"limit" minimum:"0" maximum:"500"`
}
type recentOutput struct {
	Body struct {
		Memories []MemoryView `json:"memories"`
	}
}

type startSessionInput struct {
	Body struct {
		Interface string `json:"interface" minLength:"1"`
	}
}
type sessionOutput struct {
	Body SessionView
}

type sessionIDInput struct {
	ID string `path:"id"`
}

type statsOutput struct {
	Body StatsView
}

type reconcileOutput struct {
	Body struct {
		Removed   int `json:"removed"`
		Reindexed int `json:"reindexed"`
		Failed    int `json:"failed"`
	}
}

// --- Handlers ---

func (s *Server) handleCreateMemory(ctx context.Context, input *createMemoryInput) (*createMemoryOutput, error) {
	b := input.Body
	m, err := s.services.Memories.Create(ctx, memory.CreateInput{
		SessionID:         b.SessionID,
		Interface:         b.Interface,
		Context:           b.Context,
		WithWhom:          b.WithWhom,
		WhatHappened:      b.WhatHappened,
		TextContent:       b.TextContent,
		ExperienceType:    b.ExperienceType,
		DurationSeconds:   b.DurationSeconds,
		EmotionPrimary:    b.EmotionPrimary,
		EmotionIntensity:  b.EmotionIntensity,
		EmotionWhy:        b.EmotionWhy,
		EmotionSecondary:  b.EmotionSecondary,
		Importance:        b.Importance,
		ImportanceReasons: b.ImportanceReasons,
		Annotations:       b.Annotations,
		VisualPath:        b.VisualPath,
		AudioPath:         b.AudioPath,
		VideoPath:         b.VideoPath,
		PrivacyRealm:      store.PrivacyRealm(b.PrivacyRealm),
	})
	if err != nil {
		return nil, apiError(err)
	}
	return &createMemoryOutput{Body: memoryView(m)}, nil
}

func (s *Server) handleListMemories(ctx context.Context, input *listMemoriesInput) (*listMemoriesOutput, error) {
	memories, total, err := s.services.Memories.List(ctx, store.Filter{
		Interface:      input.Interface,
		Context:        input.Context,
		Emotion:        input.Emotion,
		ExperienceType: input.ExperienceType,
		WithWhom:       input.WithWhom,
		SessionID:      input.SessionID,
		MinImportance:  input.MinImportance,
	}, store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, apiError(err)
	}
	out := &listMemoriesOutput{}
	out.Body.Memories = memoryViews(memories)
	out.Body.Total = total
	return out, nil
}

func (s *Server) handleGetMemory(ctx context.Context, input *memoryIDInput) (*getMemoryOutput, error) {
	m, err := s.services.Memories.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &getMemoryOutput{Body: memoryView(m)}, nil
}

func (s *Server) handleForgetMemory(ctx context.Context, input *memoryIDInput) (*struct{}, error) {
	changed, err := s.services.Memories.Forget(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	if !changed {
		return nil, huma.Error404NotFound("memory not found")
	}
	return nil, nil
}

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*searchOutput, error) {
	results, err := s.services.Memories.Search(ctx, memory.SearchInput{
		Query:         input.Body.Query,
		Limit:         input.Body.Limit,
		Interface:     input.Body.Interface,
		PrivacyRealm:  input.Body.PrivacyRealm,
		MinImportance: input.Body.MinImportance,
	})
	if err != nil {
		return nil, apiError(err)
	}
	out := &searchOutput{}
	out.Body.Results = make([]searchHit, 0, len(results))
	for _, r := range results {
		out.Body.Results = append(out.Body.Results, searchHit{Memory: memoryView(r.Memory), Score: r.Score})
	}
	return out, nil
}

func (s *Server) handleRecent(ctx context.Context, input *recentInput) (*recentOutput, error) {
	memories, err := s.services.Memories.Recent(ctx, input.Interface, input.Limit)
	if err != nil {
		return nil, apiError(err)
	}
	out := &recentOutput{}
	out.Body.Memories = memoryViews(memories)
	return out, nil
}

func (s *Server) handleStartSession(ctx context.Context, input *startSessionInput) (*sessionOutput, error) {
	sess, err := s.services.Sessions.StartSession(ctx, input.Body.Interface)
	if err != nil {
		return nil, apiError(err)
	}
	return &sessionOutput{Body: sessionView(sess)}, nil
}

func (s *Server) handleGetSession(ctx context.Context, input *sessionIDInput) (*sessionOutput, error) {
	sess, err := s.services.Sessions.GetSession(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &sessionOutput{Body: sessionView(sess)}, nil
}

func (s *Server) handleEndSession(ctx context.Context, input *sessionIDInput) (*sessionOutput, error) {
	sess, err := s.services.Sessions.EndSession(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &sessionOutput{Body: sessionView(sess)}, nil
}

func (s *Server) handleStats(ctx context.Context, _ *struct{}) (*statsOutput, error) {
	st, err := s.services.Memories.Stats(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return &statsOutput{Body: statsView(st)}, nil
}

func (s *Server) handleReconcile(ctx context.Context, _ *struct{}) (*reconcileOutput, error) {
	if s.services.Sweeper == nil {
		return nil, huma.Error503ServiceUnavailable("reconciler not configured")
	}
	report, err := s.services.Sweeper.Run(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	out := &reconcileOutput{}
	out.Body.Removed = report.Removed
	out.Body.Reindexed = report.Reindexed
	out.Body.Failed = report.Failed
	return out, nil
}
