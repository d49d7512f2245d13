package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"chatguard-lab/internal/config"
	"chatguard-lab/internal/domain/models"
	"chatguard-lab/internal/domain/parsers"
	"chatguard-lab/pkg/logger"
)

// Event names pushed to the realtime channel, keyed by import id
const (
	EventImportStatus   = "import.status"
	EventImportProgress = "import.progress"
)

// StatusEvent announces a state transition
type StatusEvent struct {
	ImportID string              `json:"import_id"`
	Status   models.ImportStatus `json:"status"`
	Error    string              `json:"error,omitempty"`
}

// ProgressEvent announces incremental progress within a stage
type ProgressEvent struct {
	ImportID  string `json:"import_id"`
	Stage     string `json:"stage"`
	Percent   int    `json:"percent"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// ImportRepository is the durable store for import records
type ImportRepository interface {
	Create(ctx context.Context, rec *models.ImportRecord) error
	Get(ctx context.Context, id uuid.UUID) (*models.ImportRecord, error)
	Update(ctx context.Context, rec *models.ImportRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindCompletedByHash(ctx context.Context, ownerID, contentHash string) (*models.ImportRecord, error)
}

// MessageRepository is the durable store for parsed messages, scoped by import
type MessageRepository interface {
	CreateBatch(ctx context.Context, importID uuid.UUID, msgs []models.ParsedMessage) error
	List(ctx context.Context, importID uuid.UUID, offset, limit int) ([]models.ParsedMessage, error)
	UpdateRisk(ctx context.Context, importID uuid.UUID, messageID string, risk *models.RiskAssessment) error
	DeleteByImport(ctx context.Context, importID uuid.UUID) error
}

// ParticipantRepository is the durable store for participants, scoped by import
type ParticipantRepository interface {
	CreateBatch(ctx context.Context, importID uuid.UUID, ps []models.ParsedParticipant) error
	List(ctx context.Context, importID uuid.UUID) ([]models.ParsedParticipant, error)
	UpdateRisk(ctx context.Context, importID uuid.UUID, participantID string, risk *models.RiskAssessment) error
	DeleteByImport(ctx context.Context, importID uuid.UUID) error
}

// EventPublisher pushes realtime events keyed by import id. Publishing is
// fire-and-forget: delivery failures are the publisher's concern, never the
// pipeline's.
type EventPublisher interface {
	Publish(importID, event string, payload interface{})
}

// StatusCache is an optional read-through cache for status queries
type StatusCache interface {
	GetStatus(ctx context.Context, importID string) (*models.ImportStatusInfo, bool)
	SetStatus(ctx context.Context, info *models.ImportStatusInfo)
	Invalidate(ctx context.Context, importID string)
}

// ImportOrchestrator drives an uploaded chat export through the pipeline
// state machine: VALIDATING, PARSING, ANALYZING, then COMPLETED, with FAILED
// reachable from any non-terminal state. Every transition is durably
// committed before its event is published.
type ImportOrchestrator struct {
	cfg          config.ImportConfig
	imports      ImportRepository
	messages     MessageRepository
	participants ParticipantRepository
	registry     *parsers.Registry
	validator    *FileValidator
	extractor    *EntityExtractor
	risk         *RiskEngine
	events       EventPublisher
	cache        StatusCache
	logger       *logger.Logger
}

// NewImportOrchestrator creates a new import orchestrator. Both events and
// cache may be nil; the pipeline then runs without realtime notifications or
// status caching.
func NewImportOrchestrator(
	cfg config.ImportConfig,
	imports ImportRepository,
	messages MessageRepository,
	participants ParticipantRepository,
	registry *parsers.Registry,
	validator *FileValidator,
	extractor *EntityExtractor,
	risk *RiskEngine,
	events EventPublisher,
	cache StatusCache,
	log *logger.Logger,
) *ImportOrchestrator {
	return &ImportOrchestrator{
		cfg:          cfg,
		imports:      imports,
		messages:     messages,
		participants: participants,
		registry:     registry,
		validator:    validator,
		extractor:    extractor,
		risk:         risk,
		events:       events,
		cache:        cache,
		logger:       log.WithComponent("import-orchestrator"),
	}
}

// CreateImport creates a new import record in UPLOADING state
func (o *ImportOrchestrator) CreateImport(ctx context.Context, ownerID, fileName string, fileSize int64, declared models.Platform) (uuid.UUID, error) {
	if ownerID == "" || fileName == "" {
		return uuid.Nil, fmt.Errorf("%w: owner id and file name are required", models.ErrInvalidArgument)
	}

	now := time.Now()
	rec := &models.ImportRecord{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Platform:  declared,
		Status:    models.StatusUploading,
		FileName:  fileName,
		FileSize:  fileSize,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rec.Platform == "" {
		rec.Platform = models.PlatformUnknown
	}

	if err := o.imports.Create(ctx, rec); err != nil {
		return uuid.Nil, err
	}

	o.logger.Info().
		Str("import_id", rec.ID.String()).
		Str("owner_id", ownerID).
		Str("file_name", fileName).
		Msg("import record created")

	return rec.ID, nil
}

// ProcessUploadedFile runs the full pipeline over an assembled upload. Any
// failure transitions the record to FAILED with the captured reason and is
// returned to the caller; the record never stays in a non-terminal state.
func (o *ImportOrchestrator) ProcessUploadedFile(ctx context.Context, importID uuid.UUID, data []byte) error {
	start := time.Now()
	log := o.logger.WithImportID(importID.String())

	rec, err := o.imports.Get(ctx, importID)
	if err != nil {
		return err
	}

	if err := o.transition(ctx, rec, models.StatusValidating); err != nil {
		return err
	}
	if err := o.runStage(ctx, "validating", func(sctx context.Context) error {
		return o.validate(sctx, rec, data)
	}); err != nil {
		return o.fail(ctx, rec, err)
	}

	if err := o.transition(ctx, rec, models.StatusParsing); err != nil {
		return o.fail(ctx, rec, err)
	}
	var parsed *models.ParsedChatData
	if err := o.runStage(ctx, "parsing", func(sctx context.Context) error {
		var perr error
		parsed, perr = o.parse(sctx, rec, data)
		return perr
	}); err != nil {
		return o.fail(ctx, rec, err)
	}

	if err := o.transition(ctx, rec, models.StatusAnalyzing); err != nil {
		return o.fail(ctx, rec, err)
	}
	if err := o.runStage(ctx, "persisting", func(sctx context.Context) error {
		return o.persist(sctx, rec, parsed)
	}); err != nil {
		return o.fail(ctx, rec, err)
	}
	if err := o.runStage(ctx, "analyzing", func(sctx context.Context) error {
		return o.analyze(sctx, rec, parsed)
	}); err != nil {
		return o.fail(ctx, rec, err)
	}

	rec.ProcessingTime = time.Since(start)
	if err := o.transition(ctx, rec, models.StatusCompleted); err != nil {
		return o.fail(ctx, rec, err)
	}
	o.publishProgress(rec, "completed", 100, rec.MessageCount, rec.MessageCount)

	log.Info().
		Int("messages", rec.MessageCount).
		Int("participants", rec.ParticipantCount).
		Float64("risk_score", rec.RiskScore).
		Dur("processing_time", rec.ProcessingTime).
		Msg("import completed")

	return nil
}

// runStage bounds one pipeline stage by the configured timeout. An overrun is
// reported as a stage failure even when the stage's collaborators did not
// observe the expired context themselves.
func (o *ImportOrchestrator) runStage(ctx context.Context, name string, fn func(context.Context) error) error {
	parent := ctx
	if o.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.StageTimeout)
		defer cancel()
	}

	err := fn(ctx)
	if ctx.Err() != nil && parent.Err() == nil {
		return fmt.Errorf("%s stage timed out: %w", name, ctx.Err())
	}
	return err
}

// validate hashes the payload, rejects duplicates, and runs the structural
// and security checks
func (o *ImportOrchestrator) validate(ctx context.Context, rec *models.ImportRecord, data []byte) error {
	sum := sha256.Sum256(data)
	rec.ContentHash = hex.EncodeToString(sum[:])
	rec.FileSize = int64(len(data))

	existing, err := o.imports.FindCompletedByHash(ctx, rec.OwnerID, rec.ContentHash)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != rec.ID {
		return fmt.Errorf("%w: identical file already imported as %s", models.ErrDuplicateImport, existing.ID)
	}

	result, err := o.validator.Validate(data, rec.FileName, "")
	if result != nil && len(result.Warnings) > 0 {
		rec.Warnings = append(rec.Warnings, result.Warnings...)
	}
	if err != nil {
		return err
	}

	return o.imports.Update(ctx, rec)
}

// parse re-detects the platform, persists it, and invokes the matching parser
func (o *ImportOrchestrator) parse(ctx context.Context, rec *models.ImportRecord, data []byte) (*models.ParsedChatData, error) {
	platform := parsers.Detect(data, rec.FileName)
	if platform == models.PlatformUnknown {
		platform = rec.Platform
	}
	if platform == models.PlatformUnknown {
		return nil, fmt.Errorf("%w: could not detect chat platform", models.ErrUnsupportedPlatform)
	}

	rec.Platform = platform
	if err := o.imports.Update(ctx, rec); err != nil {
		return nil, err
	}
	o.invalidateCache(ctx, rec)

	parser, err := o.registry.Get(platform)
	if err != nil {
		return nil, err
	}

	parsed, err := parser.Parse(data, rec.FileName)
	if err != nil {
		return nil, err
	}

	// Entity lists are finalized here, before persistence, so parser-promoted
	// entities and regex extraction land on the stored rows and the derived
	// statistics count them
	for i := range parsed.Messages {
		o.extractor.ExtractMessage(&parsed.Messages[i])
	}
	parsed.DeriveStatistics()

	rec.Warnings = append(rec.Warnings, parsed.Warnings...)
	return parsed, nil
}

// persist writes messages and participants in fixed-size batches. Batches
// bound peak transaction size only; rows keep source order. Progress covers
// the first half of the analyzing budget.
func (o *ImportOrchestrator) persist(ctx context.Context, rec *models.ImportRecord, parsed *models.ParsedChatData) error {
	batchSize := o.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	total := len(parsed.Messages)
	batches := (total + batchSize - 1) / batchSize
	for i := 0; i < batches; i++ {
		lo := i * batchSize
		hi := lo + batchSize
		if hi > total {
			hi = total
		}
		if err := o.messages.CreateBatch(ctx, rec.ID, parsed.Messages[lo:hi]); err != nil {
			return err
		}
		o.publishProgress(rec, "persisting", (i+1)*50/batches, hi, total)
	}

	if len(parsed.Participants) > 0 {
		if err := o.participants.CreateBatch(ctx, rec.ID, parsed.Participants); err != nil {
			return err
		}
	}

	rec.MessageCount = total
	rec.ParticipantCount = len(parsed.Participants)
	return o.imports.Update(ctx, rec)
}

// analyze re-reads persisted rows, scores every message and participant,
// assembles key findings, and writes the final aggregates onto the record
func (o *ImportOrchestrator) analyze(ctx context.Context, rec *models.ImportRecord, parsed *models.ParsedChatData) error {
	persisted, err := o.participants.List(ctx, rec.ID)
	if err != nil {
		return err
	}
	byID := make(map[string]*models.ParsedParticipant, len(persisted))
	for i := range persisted {
		byID[persisted[i].ID] = &persisted[i]
	}

	interval := o.cfg.ProgressInterval
	if interval <= 0 {
		interval = 100
	}
	pageSize := o.cfg.BatchSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	var findings []models.KeyFinding
	scoresBySender := make(map[string][]int)
	scoreSum, scored := 0, 0

	total := rec.MessageCount
	processed := 0
	for offset := 0; ; offset += pageSize {
		page, err := o.messages.List(ctx, rec.ID, offset, pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			msg := &page[i]
			entities := o.extractor.ExtractMessage(msg)
			assessment := o.risk.ScoreMessage(msg, entities, byID[msg.SenderID])

			if err := o.messages.UpdateRisk(ctx, rec.ID, msg.ID, assessment); err != nil {
				return err
			}

			scoreSum += assessment.Score
			scored++
			if msg.SenderID != "" {
				scoresBySender[msg.SenderID] = append(scoresBySender[msg.SenderID], assessment.Score)
			}
			if assessment.Score > 50 {
				findings = append(findings, models.KeyFinding{
					Kind:    "message",
					RefID:   msg.ID,
					Score:   assessment.Score,
					Flags:   assessment.Flags,
					Preview: preview(msg.Content, 120),
				})
			}

			processed++
			if processed%interval == 0 {
				o.publishProgress(rec, "analyzing", 50+processed*50/total, processed, total)
			}
		}

		if len(page) < pageSize {
			break
		}
	}

	for i := range persisted {
		p := &persisted[i]
		assessment := o.risk.ScoreParticipant(p, scoresBySender[p.ID])
		if err := o.participants.UpdateRisk(ctx, rec.ID, p.ID, assessment); err != nil {
			return err
		}
		if assessment.Score > 60 {
			findings = append(findings, models.KeyFinding{
				Kind:  "participant",
				RefID: p.ID,
				Score: assessment.Score,
				Flags: assessment.Flags,
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Score > findings[j].Score })
	if len(findings) > 10 {
		findings = findings[:10]
	}

	var overall float64
	if scored > 0 {
		overall = float64(scoreSum) / float64(scored)
	}

	rec.RiskScore = overall
	rec.RiskLevel = models.LevelForScore(overall)
	rec.KeyFindings = findings
	rec.Summary = buildSummary(rec, parsed)
	if !parsed.Statistics.DateRange.From.IsZero() {
		from, to := parsed.Statistics.DateRange.From, parsed.Statistics.DateRange.To
		rec.DateFrom = &from
		rec.DateTo = &to
	}

	return o.imports.Update(ctx, rec)
}

// GetStatus returns the compact status view, served from cache when fresh.
// Records belonging to another owner are reported as not found.
func (o *ImportOrchestrator) GetStatus(ctx context.Context, importID uuid.UUID, ownerID string) (*models.ImportStatusInfo, error) {
	rec, err := o.imports.Get(ctx, importID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: import %s", models.ErrNotFound, importID)
	}

	if o.cache != nil {
		if info, ok := o.cache.GetStatus(ctx, importID.String()); ok {
			return info, nil
		}
	}

	info := statusInfo(rec)
	if o.cache != nil {
		o.cache.SetStatus(ctx, info)
	}
	return info, nil
}

// GetResults returns the full report. Fails with NotCompleted unless the
// import reached COMPLETED.
func (o *ImportOrchestrator) GetResults(ctx context.Context, importID uuid.UUID, ownerID string, messageOffset, messageLimit int) (*models.ImportReport, error) {
	rec, err := o.imports.Get(ctx, importID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: import %s", models.ErrNotFound, importID)
	}
	if rec.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: import is %s", models.ErrNotCompleted, rec.Status)
	}

	participants, err := o.participants.List(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	report := &models.ImportReport{
		Record:       rec,
		Participants: participants,
	}

	if messageLimit > 0 {
		msgs, err := o.messages.List(ctx, rec.ID, messageOffset, messageLimit)
		if err != nil {
			return nil, err
		}
		report.Messages = msgs
	}

	return report, nil
}

// DeleteImport cascades messages and participants, then the record itself
func (o *ImportOrchestrator) DeleteImport(ctx context.Context, importID uuid.UUID, ownerID string) error {
	rec, err := o.imports.Get(ctx, importID)
	if err != nil {
		return err
	}
	if rec.OwnerID != ownerID {
		return fmt.Errorf("%w: import %s", models.ErrNotFound, importID)
	}

	if err := o.messages.DeleteByImport(ctx, importID); err != nil {
		return err
	}
	if err := o.participants.DeleteByImport(ctx, importID); err != nil {
		return err
	}
	if err := o.imports.Delete(ctx, importID); err != nil {
		return err
	}
	o.invalidateCache(ctx, rec)

	o.logger.Info().
		Str("import_id", importID.String()).
		Str("owner_id", ownerID).
		Msg("import deleted")

	return nil
}

// transition commits a state change and publishes its event. The change is
// durably committed before anyone can observe it.
func (o *ImportOrchestrator) transition(ctx context.Context, rec *models.ImportRecord, next models.ImportStatus) error {
	if !rec.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal status transition %s -> %s", rec.Status, next)
	}
	rec.Status = next
	rec.UpdatedAt = time.Now()
	if err := o.imports.Update(ctx, rec); err != nil {
		return err
	}
	o.invalidateCache(ctx, rec)
	o.publishStatus(rec, "")
	return nil
}

// fail forces the record to FAILED with the captured reason and returns the
// original error
func (o *ImportOrchestrator) fail(ctx context.Context, rec *models.ImportRecord, cause error) error {
	o.logger.Error().
		Err(cause).
		Str("import_id", rec.ID.String()).
		Str("status", string(rec.Status)).
		Msg("import pipeline failed")

	if rec.Status.CanTransitionTo(models.StatusFailed) {
		rec.Status = models.StatusFailed
		rec.Error = cause.Error()
		rec.UpdatedAt = time.Now()
		if err := o.imports.Update(ctx, rec); err != nil {
			o.logger.Error().Err(err).Str("import_id", rec.ID.String()).Msg("failed to persist FAILED status")
		}
		o.invalidateCache(ctx, rec)
		o.publishStatus(rec, cause.Error())
	}
	return cause
}

func (o *ImportOrchestrator) publishStatus(rec *models.ImportRecord, errMsg string) {
	if o.events == nil {
		return
	}
	o.events.Publish(rec.ID.String(), EventImportStatus, StatusEvent{
		ImportID: rec.ID.String(),
		Status:   rec.Status,
		Error:    errMsg,
	})
}

func (o *ImportOrchestrator) publishProgress(rec *models.ImportRecord, stage string, percent, processed, total int) {
	if o.events == nil {
		return
	}
	if percent > 100 {
		percent = 100
	}
	o.events.Publish(rec.ID.String(), EventImportProgress, ProgressEvent{
		ImportID:  rec.ID.String(),
		Stage:     stage,
		Percent:   percent,
		Processed: processed,
		Total:     total,
	})
}

func (o *ImportOrchestrator) invalidateCache(ctx context.Context, rec *models.ImportRecord) {
	if o.cache != nil {
		o.cache.Invalidate(ctx, rec.ID.String())
	}
}

func statusInfo(rec *models.ImportRecord) *models.ImportStatusInfo {
	return &models.ImportStatusInfo{
		ID:               rec.ID,
		Status:           rec.Status,
		Platform:         rec.Platform,
		MessageCount:     rec.MessageCount,
		ParticipantCount: rec.ParticipantCount,
		RiskScore:        rec.RiskScore,
		RiskLevel:        rec.RiskLevel,
		ProcessingTime:   rec.ProcessingTime,
		Error:            rec.Error,
		UpdatedAt:        rec.UpdatedAt,
	}
}

// buildSummary produces the short human-readable report line
func buildSummary(rec *models.ImportRecord, parsed *models.ParsedChatData) string {
	days := len(parsed.Statistics.PerDay)
	return fmt.Sprintf("Analyzed %d messages from %d participants across %d day(s); overall risk level %s (score %.1f).",
		rec.MessageCount, rec.ParticipantCount, days, rec.RiskLevel, rec.RiskScore)
}

// preview truncates content for a key-finding snippet
func preview(content string, max int) string {
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}
