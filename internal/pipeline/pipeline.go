// Package pipeline orchestrates a live protocol query: quota gate,
// tenant resolution, retrieval, tiered generation, audit persistence,
// and quota accounting.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	gormdb "github.com/rescuelabs/protocold/internal/db/gorm"
	"github.com/rescuelabs/protocold/internal/generation"
	"github.com/rescuelabs/protocold/internal/privacy"
	"github.com/rescuelabs/protocold/internal/quota"
	"github.com/rescuelabs/protocold/internal/retrieval"
	"github.com/rescuelabs/protocold/internal/telemetry"
	"github.com/rescuelabs/protocold/pkg/models"
)

// Outcome codes returned in Result.Error. These are routine results the
// caller branches on, not exceptions.
const (
	ErrCodeQuotaExceeded    = "quota_exceeded"
	ErrCodeNoProtocols      = "no_matching_protocols"
	ErrCodeUserNotFound     = "user_not_found"
	ErrCodeRetrievalFailed  = "retrieval_failed"
	ErrCodeGenerationFailed = "generation_failed"
	ErrCodeInternal         = "internal_error"
)

// UserDirectory resolves users and agencies for tier and tenant scope.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetAgency(ctx context.Context, id int64) (*models.Agency, error)
}

// HistoryAppender is the audit-log write port.
type HistoryAppender interface {
	Append(ctx context.Context, rec *models.QueryRecord) (int64, error)
}

// Config holds pipeline settings.
type Config struct {
	RetrievalLimit      int     // max passages fetched (default 10)
	SimilarityThreshold float64 // minimum similarity to use a passage
}

// Timings is the per-stage breakdown attached to successful responses.
type Timings struct {
	RetrievalMs  int64 `json:"retrieval_ms"`
	GenerationMs int64 `json:"generation_ms"`
	TotalMs      int64 `json:"total_ms"`
}

// Response is the payload of a successful query.
type Response struct {
	Text           string   `json:"text"`
	ProtocolRefs   []string `json:"protocol_refs"`
	Model          string   `json:"model"`
	InputTokens    int64    `json:"input_tokens"`
	OutputTokens   int64    `json:"output_tokens"`
	ResponseTimeMs int64    `json:"response_time_ms"`
	RecordID       int64    `json:"record_id"`
	Timings        Timings  `json:"timings"`
}

// Result is the structured outcome of a query submission. Failures are
// values, not errors: the caller only needs Success and Error.
type Result struct {
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// Pipeline wires the query stages together. Each submission runs the
// stages strictly in order; nothing is committed on any failure path.
type Pipeline struct {
	users     UserDirectory
	gate      *quota.Gate
	retriever retrieval.Retriever
	generator generation.Generator
	history   HistoryAppender
	metrics   *telemetry.Metrics
	cfg       Config
}

// New creates a query pipeline.
func New(users UserDirectory, gate *quota.Gate, retriever retrieval.Retriever, generator generation.Generator, history HistoryAppender, metrics *telemetry.Metrics, cfg Config) *Pipeline {
	if cfg.RetrievalLimit <= 0 {
		cfg.RetrievalLimit = 10
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.35
	}
	return &Pipeline{
		users:     users,
		gate:      gate,
		retriever: retriever,
		generator: generator,
		history:   history,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// SubmitQuery runs the full pipeline for one query. Quota is checked
// before any paid work and incremented only after the audit record is
// written; no failure path charges quota or writes partial state.
func (p *Pipeline) SubmitQuery(ctx context.Context, userID, agencyID int64, queryText string) *Result {
	start := time.Now()

	user, err := p.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gormdb.ErrNotFound) {
			return p.fail(ctx, ErrCodeUserNotFound)
		}
		log.Error().Err(err).Int64("userId", userID).Msg("User lookup failed")
		return p.fail(ctx, ErrCodeInternal)
	}

	// 1. Gate before any retrieval or generation cost.
	allowed, err := p.gate.CanQuery(ctx, user)
	if err != nil {
		log.Error().Err(err).Int64("userId", userID).Msg("Quota check failed")
		return p.fail(ctx, ErrCodeInternal)
	}
	if !allowed {
		return p.fail(ctx, ErrCodeQuotaExceeded)
	}

	// 2. Resolve tenant scope. Unknown tenants fall back to an unscoped
	// search rather than failing; jurisdiction metadata may be incomplete.
	scopeID := agencyID
	if scopeID == 0 {
		scopeID = user.AgencyID
	}
	agencyName := ""
	if scopeID != 0 {
		agency, err := p.users.GetAgency(ctx, scopeID)
		if err != nil {
			log.Warn().Err(err).Int64("agencyId", scopeID).Msg("Unknown agency, searching unscoped")
			scopeID = 0
		} else {
			agencyName = agency.Name
		}
	}

	// 3. Retrieve.
	retrievalStart := time.Now()
	passages, err := p.retriever.Search(ctx, queryText, scopeID, p.cfg.RetrievalLimit, p.cfg.SimilarityThreshold)
	retrievalMs := time.Since(retrievalStart).Milliseconds()
	p.metrics.RecordStage(ctx, "retrieval", time.Since(retrievalStart))
	if err != nil {
		log.Error().Err(err).Int64("userId", userID).Msg("Retrieval failed")
		return p.fail(ctx, ErrCodeRetrievalFailed)
	}
	if len(passages) == 0 {
		// A routine outcome, not a system error. Quota stays untouched.
		return p.fail(ctx, ErrCodeNoProtocols)
	}

	// 4+5. Tier routing is a pure function of stored user state; the
	// generator owns the model choice.
	generationStart := time.Now()
	gen, err := p.generator.Generate(ctx, generation.Request{
		Query:      queryText,
		Passages:   passages,
		Tier:       user.Tier,
		AgencyName: agencyName,
	})
	generationMs := time.Since(generationStart).Milliseconds()
	p.metrics.RecordStage(ctx, "generation", time.Since(generationStart))
	if err != nil {
		// Full detail server-side; only a safe code reaches the client.
		log.Error().Err(err).Int64("userId", userID).Str("tier", string(user.Tier)).Msg("Generation failed")
		return p.fail(ctx, ErrCodeGenerationFailed)
	}

	// Citations come from retrieved passages in retrieval order,
	// independent of what the generated text names.
	refs := make(models.JSONStringArray, len(passages))
	for i, passage := range passages {
		refs[i] = passage.Ref()
	}

	// 6. Persist the audit record. Query text is redacted first.
	rec := &models.QueryRecord{
		UserID:         userID,
		AgencyID:       scopeID,
		QueryText:      privacy.Clean(queryText),
		ResponseText:   gen.Content,
		ProtocolRefs:   refs,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		ModelUsed:      gen.Model,
	}
	if _, err := p.history.Append(ctx, rec); err != nil {
		log.Error().Err(err).Int64("userId", userID).Msg("Audit record write failed")
		return p.fail(ctx, ErrCodeInternal)
	}

	// 7. Charge quota only after the record is durable.
	if err := p.gate.Increment(ctx, user); err != nil {
		// The answer already stands; losing one increment keeps the
		// limit soft rather than failing the whole query.
		log.Warn().Err(err).Int64("userId", userID).Msg("Quota increment failed")
	}

	p.metrics.RecordQuery(ctx, "success")
	totalMs := time.Since(start).Milliseconds()
	return &Result{
		Success: true,
		Response: &Response{
			Text:           gen.Content,
			ProtocolRefs:   refs,
			Model:          gen.Model,
			InputTokens:    gen.InputTokens,
			OutputTokens:   gen.OutputTokens,
			ResponseTimeMs: totalMs,
			RecordID:       rec.ID,
			Timings: Timings{
				RetrievalMs:  retrievalMs,
				GenerationMs: generationMs,
				TotalMs:      totalMs,
			},
		},
	}
}

func (p *Pipeline) fail(ctx context.Context, code string) *Result {
	p.metrics.RecordQuery(ctx, code)
	return &Result{Success: false, Error: code}
}
