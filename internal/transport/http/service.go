// Package httptransport is the HTTP surface of the synthesis pipeline: the
// synthesis and voice endpoints, the training job API and the operational
// endpoints (providers, cache, health).
package httptransport

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/domain/auth"
	"chorus-server-go/internal/domain/eventbus"
	"chorus-server-go/internal/domain/synthesis/cache"
	"chorus-server-go/internal/domain/synthesis/health"
	"chorus-server-go/internal/domain/training"
	"chorus-server-go/internal/domain/voices"
	"chorus-server-go/internal/platform/config"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
	"chorus-server-go/internal/util"
)

// Synthesizer is the slice of the orchestrator the transport needs.
type Synthesizer interface {
	Synthesize(ctx context.Context, req providers.SynthesisRequest) (*providers.SynthesisResult, error)
	SynthesizeStream(ctx context.Context, req providers.SynthesisRequest) (<-chan providers.StreamChunk, error)
}

// Trainer is the slice of the training service the transport needs.
type Trainer interface {
	EnqueueTraining(ctx context.Context, ownerID, provider, modelName string, samples []training.SampleRef, params training.Params, priority int) (*training.Job, error)
	GetTrainingStatus(ctx context.Context, jobID string) (*training.Job, error)
	CancelTraining(ctx context.Context, jobID, ownerID string) error
	ListJobs(ctx context.Context, ownerID string, page, pageSize int) ([]*training.Job, int64, error)
	ListModels(ctx context.Context, ownerID string) ([]*training.VoiceModel, error)
	ActivateModel(ctx context.Context, id, ownerID string) error
	DeleteModel(ctx context.Context, id, ownerID string) error
}

// VoiceCatalog lists the builtin and trained voices.
type VoiceCatalog interface {
	BuiltinVoices() []providers.Voice
	TrainedVoices(ctx context.Context, ownerID string) ([]voices.TrainedVoice, error)
}

// HealthView is the tracker slice behind the providers endpoint.
type HealthView interface {
	Order() []string
	Available(name string) bool
	BreakerState(name string) string
	Profile(name string) (health.Profile, bool)
	QuotaSnapshot(name string) (health.Quota, bool)
}

// CacheView backs the cache stats and maintenance endpoints.
type CacheView interface {
	Stats(ctx context.Context) cache.Stats
	Cleanup(ctx context.Context) (int, error)
}

// EventHistory lists the persisted lifecycle events of one training job.
type EventHistory interface {
	ListByJobID(ctx context.Context, jobID string, limit int) ([]eventbus.JobEvent, error)
}

// Dependencies are the pipeline collaborators behind the HTTP surface.
// Events and Tokens are optional; everything else is required.
type Dependencies struct {
	Synth   Synthesizer
	Trainer Trainer
	Catalog VoiceCatalog
	Health  HealthView
	Cache   CacheView
	Events  EventHistory
	Tokens  *auth.AuthToken
}

// Service is the HTTP transport layer of the pipeline.
type Service struct {
	logger  *logging.Logger
	config  *config.Config
	synth   Synthesizer
	trainer Trainer
	catalog VoiceCatalog
	healthv HealthView
	cache   CacheView
	events  EventHistory
	tokens  *auth.AuthToken
	started time.Time
}

// NewService builds the transport layer over its collaborators.
func NewService(cfg *config.Config, logger *logging.Logger, deps Dependencies) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "http.new", "config is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "http.new", "logger is required")
	}
	if deps.Synth == nil {
		return nil, errors.New(errors.KindConfig, "http.new", "synthesizer is required")
	}
	if deps.Trainer == nil {
		return nil, errors.New(errors.KindConfig, "http.new", "training service is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New(errors.KindConfig, "http.new", "voice catalog is required")
	}
	if deps.Health == nil {
		return nil, errors.New(errors.KindConfig, "http.new", "health view is required")
	}
	if deps.Cache == nil {
		return nil, errors.New(errors.KindConfig, "http.new", "cache view is required")
	}

	return &Service{
		logger:  logger,
		config:  cfg,
		synth:   deps.Synth,
		trainer: deps.Trainer,
		catalog: deps.Catalog,
		healthv: deps.Health,
		cache:   deps.Cache,
		events:  deps.Events,
		tokens:  deps.Tokens,
		started: time.Now(),
	}, nil
}

// Register wires every route onto the router. Training and voice-model routes
// land on the secured group, the rest on the open API group.
func (s *Service) Register(ctx context.Context, router *Router) error {
	if router == nil || router.API == nil {
		return errors.New(errors.KindConfig, "http.register", "router is required")
	}
	if router.Secured == nil {
		return errors.New(errors.KindConfig, "http.register", "secured route group is required")
	}

	v1 := router.API.Group("/v1")
	v1.POST("/synthesize", s.handleSynthesize)
	v1.GET("/synthesize/stream", s.handleSynthesizeStream)
	v1.GET("/voices", OptionalAuth(s.tokens), s.handleVoices)
	v1.GET("/providers", s.handleProviders)
	v1.GET("/cache/stats", s.handleCacheStats)
	if s.tokens != nil {
		v1.POST("/auth/token", s.handleIssueToken)
	}

	secured := router.Secured.Group("/v1")
	secured.POST("/training/jobs", s.handleEnqueueTraining)
	secured.GET("/training/jobs", s.handleListJobs)
	secured.GET("/training/jobs/:id", s.handleJobStatus)
	secured.DELETE("/training/jobs/:id", s.handleCancelJob)
	secured.GET("/voice-models", s.handleListModels)
	secured.POST("/voice-models/:id/activate", s.handleActivateModel)
	secured.DELETE("/voice-models/:id", s.handleDeleteModel)
	secured.POST("/cache/cleanup", s.handleCacheCleanup)

	router.Engine.GET("/healthz", s.handleHealthz)

	s.logger.InfoTag("HTTP", "routes registered")
	return nil
}

// synthesizeResponse is the JSON view of a rendered result. Audio is base64
// encoded by the JSON marshaller.
type synthesizeResponse struct {
	Audio      []byte  `json:"audio"`
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	DurationMS int64   `json:"duration_ms"`
	Provider   string  `json:"provider"`
	Cost       float64 `json:"cost"`
	LatencyMS  int64   `json:"latency_ms"`
	Cached     bool    `json:"cached"`
}

func (s *Service) handleSynthesize(c *gin.Context) {
	var req providers.SynthesisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	req.Options.Language = voices.Normalize(req.Options.Language)

	result, err := s.synth.Synthesize(c.Request.Context(), req)
	if err != nil {
		s.logger.WarnTag("HTTP", "synthesis failed: %v", err)
		RespondKindError(c, err)
		return
	}

	RespondSuccess(c, http.StatusOK, synthesizeResponse{
		Audio:      result.Audio,
		Format:     result.Format,
		SampleRate: result.SampleRate,
		DurationMS: result.Duration.Milliseconds(),
		Provider:   result.Provider,
		Cost:       result.Cost,
		LatencyMS:  result.Latency.Milliseconds(),
		Cached:     result.Cached,
	}, "")
}

func (s *Service) handleVoices(c *gin.Context) {
	data := gin.H{
		"voices":    s.catalog.BuiltinVoices(),
		"languages": voices.Languages(),
	}
	if owner := OwnerID(c); owner != "" {
		trained, err := s.catalog.TrainedVoices(c.Request.Context(), owner)
		if err != nil {
			s.logger.WarnTag("HTTP", "cannot list trained voices for %s: %v", owner, err)
		} else {
			data["trained"] = trained
		}
	}
	RespondSuccess(c, http.StatusOK, data, "")
}

// providerStatus is one row of the providers endpoint.
type providerStatus struct {
	Name      string         `json:"name"`
	Available bool           `json:"available"`
	Breaker   string         `json:"breaker"`
	Profile   health.Profile `json:"profile"`
	Quota     *health.Quota  `json:"quota,omitempty"`
}

func (s *Service) handleProviders(c *gin.Context) {
	names := s.healthv.Order()
	statuses := make([]providerStatus, 0, len(names))
	for _, name := range names {
		status := providerStatus{
			Name:      name,
			Available: s.healthv.Available(name),
			Breaker:   s.healthv.BreakerState(name),
		}
		if profile, ok := s.healthv.Profile(name); ok {
			status.Profile = profile
		}
		if quota, ok := s.healthv.QuotaSnapshot(name); ok {
			status.Quota = &quota
		}
		statuses = append(statuses, status)
	}
	RespondSuccess(c, http.StatusOK, gin.H{"providers": statuses}, "")
}

func (s *Service) handleCacheStats(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, s.cache.Stats(c.Request.Context()), "")
}

func (s *Service) handleCacheCleanup(c *gin.Context) {
	removed, err := s.cache.Cleanup(c.Request.Context())
	if err != nil {
		RespondKindError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"removed": removed}, "cache cleanup finished")
}

type issueTokenRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
}

func (s *Service) handleIssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	token, err := s.tokens.GenerateToken(req.OwnerID)
	if err != nil {
		RespondKindError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"token": token, "owner_id": req.OwnerID}, "")
}

type enqueueTrainingRequest struct {
	Provider  string               `json:"provider" binding:"required"`
	ModelName string               `json:"model_name"`
	Samples   []training.SampleRef `json:"samples" binding:"required"`
	Params    training.Params      `json:"params"`
	Priority  int                  `json:"priority"`
}

func (s *Service) handleEnqueueTraining(c *gin.Context) {
	var req enqueueTrainingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	req.Params.Language = voices.Normalize(req.Params.Language)

	job, err := s.trainer.EnqueueTraining(c.Request.Context(), OwnerID(c),
		req.Provider, req.ModelName, req.Samples, req.Params, req.Priority)
	if err != nil {
		RespondKindError(c, err)
		return
	}
	RespondSuccess(c, http.StatusAccepted, job, "training job queued")
}

func (s *Service) handleListJobs(c *gin.Context) {
	page := atoiDefault(c.Query("page"), 1)
	pageSize := atoiDefault(c.Query("page_size"), 0)

	jobs, total, err := s.trainer.ListJobs(c.Request.Context(), OwnerID(c), page, pageSize)
	if err != nil {
		RespondKindError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": total,
		"page":  page,
	}, "")
}

func (s *Service) handleJobStatus(c *gin.Context) {
	jobID := c.Param("id")
	job, err := s.trainer.GetTrainingStatus(c.Request.Context(), jobID)
	if err != nil {
		RespondKindError(c, err)
		return
	}
	// Jobs are visible to their owner only; report foreign jobs as missing.
	if job.OwnerID != OwnerID(c) {
		RespondError(c, http.StatusNotFound, "job not found", nil)
		return
	}

	data := gin.H{"job": job}
	if s.events != nil {
		events, err := s.events.ListByJobID(c.Request.Context(), jobID, 0)
		if err != nil {
			s.logger.WarnTag("HTTP", "cannot load events for job %s: %v", jobID, err)
		} else {
			data["events"] = events
		}
	}
	RespondSuccess(c, http.StatusOK, data, "")
}

func (s *Service) handleCancelJob(c *gin.Context) {
	jobID := c.Param("id")
	if err := s.trainer.CancelTraining(c.Request.Context(), jobID, OwnerID(c)); err != nil {
		RespondKindError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"id": jobID}, "cancellation requested")
}

func (s *Service) handleListModels(c *gin.Context) {
	models, err := s.trainer.ListModels(c.Request.Context(), OwnerID(c))
	if err != nil {
		RespondKindError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"models": models}, "")
}

func (s *Service) handleActivateModel(c *gin.Context) {
	id := c.Param("id")
	if err := s.trainer.ActivateModel(c.Request.Context(), id, OwnerID(c)); err != nil {
		RespondKindError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"id": id, "active": true}, "voice model activated")
}

func (s *Service) handleDeleteModel(c *gin.Context) {
	id := c.Param("id")
	if err := s.trainer.DeleteModel(c.Request.Context(), id, OwnerID(c)); err != nil {
		RespondKindError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"id": id}, "voice model deleted")
}

func (s *Service) handleHealthz(c *gin.Context) {
	providerState := make(map[string]bool)
	for _, name := range s.healthv.Order() {
		providerState[name] = s.healthv.Available(name)
	}

	data := gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"providers":      providerState,
	}
	if mem, err := util.MemoryUsagePercent(); err == nil {
		data["memory_percent"] = mem
	}
	if cpu, err := util.CPUUsagePercent(); err == nil {
		data["cpu_percent"] = cpu
	}
	c.JSON(http.StatusOK, data)
}

func atoiDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
