package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"chatguard-lab/internal/config"
	"chatguard-lab/internal/domain/models"
	"chatguard-lab/internal/domain/parsers"
	"chatguard-lab/pkg/logger"
)

// fakeImportRepo is an in-memory ImportRepository
type fakeImportRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]models.ImportRecord
}

func newFakeImportRepo() *fakeImportRepo {
	return &fakeImportRepo{records: make(map[uuid.UUID]models.ImportRecord)}
}

func (r *fakeImportRepo) Create(ctx context.Context, rec *models.ImportRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = *rec
	return nil
}

func (r *fakeImportRepo) Get(ctx context.Context, id uuid.UUID) (*models.ImportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: import %s", models.ErrNotFound, id)
	}
	out := rec
	return &out, nil
}

func (r *fakeImportRepo) Update(ctx context.Context, rec *models.ImportRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return fmt.Errorf("%w: import %s", models.ErrNotFound, rec.ID)
	}
	r.records[rec.ID] = *rec
	return nil
}

func (r *fakeImportRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return fmt.Errorf("%w: import %s", models.ErrNotFound, id)
	}
	delete(r.records, id)
	return nil
}

func (r *fakeImportRepo) FindCompletedByHash(ctx context.Context, ownerID, contentHash string) (*models.ImportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.OwnerID == ownerID && rec.ContentHash == contentHash && rec.Status == models.StatusCompleted {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

// fakeMessageRepo is an in-memory MessageRepository preserving source order
type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID][]models.ParsedMessage
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[uuid.UUID][]models.ParsedMessage)}
}

func (r *fakeMessageRepo) CreateBatch(ctx context.Context, importID uuid.UUID, msgs []models.ParsedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[importID] = append(r.messages[importID], msgs...)
	return nil
}

func (r *fakeMessageRepo) List(ctx context.Context, importID uuid.UUID, offset, limit int) ([]models.ParsedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.messages[importID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]models.ParsedMessage, end-offset)
	copy(out, all[offset:end])
	return out, nil
}

func (r *fakeMessageRepo) UpdateRisk(ctx context.Context, importID uuid.UUID, messageID string, risk *models.RiskAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages[importID] {
		if r.messages[importID][i].ID == messageID {
			r.messages[importID][i].Risk = risk
			return nil
		}
	}
	return fmt.Errorf("%w: message %s", models.ErrNotFound, messageID)
}

func (r *fakeMessageRepo) DeleteByImport(ctx context.Context, importID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, importID)
	return nil
}

// fakeParticipantRepo is an in-memory ParticipantRepository
type fakeParticipantRepo struct {
	mu           sync.Mutex
	participants map[uuid.UUID][]models.ParsedParticipant
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{participants: make(map[uuid.UUID][]models.ParsedParticipant)}
}

func (r *fakeParticipantRepo) CreateBatch(ctx context.Context, importID uuid.UUID, ps []models.ParsedParticipant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[importID] = append(r.participants[importID], ps...)
	return nil
}

func (r *fakeParticipantRepo) List(ctx context.Context, importID uuid.UUID) ([]models.ParsedParticipant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ParsedParticipant, len(r.participants[importID]))
	copy(out, r.participants[importID])
	return out, nil
}

func (r *fakeParticipantRepo) UpdateRisk(ctx context.Context, importID uuid.UUID, participantID string, risk *models.RiskAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.participants[importID] {
		if r.participants[importID][i].ID == participantID {
			r.participants[importID][i].Risk = risk
			return nil
		}
	}
	return fmt.Errorf("%w: participant %s", models.ErrNotFound, participantID)
}

func (r *fakeParticipantRepo) DeleteByImport(ctx context.Context, importID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, importID)
	return nil
}

// eventRecorder captures published events in order
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	importID string
	event    string
	payload  interface{}
}

func (r *eventRecorder) Publish(importID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{importID, event, payload})
}

func (r *eventRecorder) statuses() []models.ImportStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ImportStatus
	for _, e := range r.events {
		if e.event == EventImportStatus {
			out = append(out, e.payload.(StatusEvent).Status)
		}
	}
	return out
}

type orchestratorFixture struct {
	orchestrator *ImportOrchestrator
	imports      *fakeImportRepo
	messages     *fakeMessageRepo
	participants *fakeParticipantRepo
	events       *eventRecorder
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	return newOrchestratorFixtureWithConfig(t, config.ImportConfig{BatchSize: 2, ProgressInterval: 1})
}

func newOrchestratorFixtureWithConfig(t *testing.T, cfg config.ImportConfig) *orchestratorFixture {
	t.Helper()
	log := logger.NewDefault()

	registry := parsers.NewRegistry(log)
	registry.Register(parsers.NewWhatsAppParser(log, 0))
	registry.Register(parsers.NewTelegramParser(log, 0))

	f := &orchestratorFixture{
		imports:      newFakeImportRepo(),
		messages:     newFakeMessageRepo(),
		participants: newFakeParticipantRepo(),
		events:       &eventRecorder{},
	}
	f.orchestrator = NewImportOrchestrator(
		cfg,
		f.imports,
		f.messages,
		f.participants,
		registry,
		NewFileValidator(config.UploadConfig{MaxFileSize: 1 << 20}, log),
		NewEntityExtractor(log),
		NewRiskEngine(log),
		f.events,
		nil,
		log,
	)
	return f
}

const sampleTranscript = `[01/02/2024, 10:15:00] Alice: Check this out https://scam.example/offer
[01/02/2024, 10:16:00] Bob: looks dodgy
[01/02/2024, 10:17:00] Alice: URGENT, act now and wire transfer $5,000 for guaranteed returns
[01/02/2024, 10:18:00] Bob: no thanks
[02/02/2024, 09:00:00] Alice: last chance, send to bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq`

func runSampleImport(t *testing.T, f *orchestratorFixture, owner string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	importID, err := f.orchestrator.CreateImport(ctx, owner, "chat.txt", int64(len(sampleTranscript)), models.PlatformUnknown)
	if err != nil {
		t.Fatalf("CreateImport error: %v", err)
	}
	if err := f.orchestrator.ProcessUploadedFile(ctx, importID, []byte(sampleTranscript)); err != nil {
		t.Fatalf("ProcessUploadedFile error: %v", err)
	}
	return importID
}

func TestPipelineHappyPath(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	importID := runSampleImport(t, f, "owner-1")

	rec, err := f.imports.Get(ctx, importID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED (error %q)", rec.Status, rec.Error)
	}
	if rec.Platform != models.PlatformWhatsApp {
		t.Errorf("platform = %s, want whatsapp", rec.Platform)
	}
	if rec.MessageCount != 5 || rec.ParticipantCount != 2 {
		t.Errorf("counts = %d messages / %d participants", rec.MessageCount, rec.ParticipantCount)
	}
	if rec.ContentHash == "" {
		t.Error("content hash not recorded")
	}
	if rec.RiskScore <= 0 {
		t.Errorf("risk score = %v, want > 0", rec.RiskScore)
	}
	if rec.RiskLevel == "" {
		t.Error("risk level not set")
	}
	if rec.DateFrom == nil || rec.DateTo == nil || !rec.DateTo.After(*rec.DateFrom) {
		t.Errorf("date range = %v..%v", rec.DateFrom, rec.DateTo)
	}
	if !strings.Contains(rec.Summary, "5 messages") {
		t.Errorf("summary = %q", rec.Summary)
	}

	// Transition events arrive in state-machine order
	want := []models.ImportStatus{models.StatusValidating, models.StatusParsing, models.StatusAnalyzing, models.StatusCompleted}
	got := f.events.statuses()
	if len(got) != len(want) {
		t.Fatalf("status events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("status events = %v, want %v", got, want)
		}
	}

	// Every persisted message carries its assessment
	msgs, err := f.messages.List(ctx, importID, 0, 100)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	for _, m := range msgs {
		if m.Risk == nil {
			t.Fatalf("message %s has no risk assessment", m.ID)
		}
	}
}

func TestPipelinePersistsMessageEntities(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	importID := runSampleImport(t, f, "owner-1")

	msgs, err := f.messages.List(ctx, importID, 0, 100)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("messages = %d, want 5", len(msgs))
	}

	if got := msgs[0].Entities.URLs; len(got) != 1 || got[0] != "https://scam.example/offer" {
		t.Errorf("message 1 urls = %v, want the offer link", got)
	}
	if got := msgs[4].Entities.WalletAddresses; len(got) != 1 {
		t.Errorf("message 5 wallets = %v, want 1 entry", got)
	}
	if got := msgs[1].Entities.URLs; len(got) != 0 {
		t.Errorf("message 2 urls = %v, want none", got)
	}
}

func TestPipelineTelegramPromotedEntities(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	// The link target lives only in the text_link href, never in the
	// visible text
	export := `{
		"name": "Deals",
		"type": "personal_chat",
		"id": 77,
		"messages": [
			{
				"id": 1,
				"type": "message",
				"date": "2024-02-01T10:15:00",
				"date_unixtime": "1706782500",
				"from": "Eve",
				"from_id": "user77",
				"text": [{"type": "text_link", "text": "click here", "href": "https://scam.example/hidden"}]
			}
		]
	}`

	importID, err := f.orchestrator.CreateImport(ctx, "owner-1", "result.json", int64(len(export)), models.PlatformUnknown)
	if err != nil {
		t.Fatalf("CreateImport error: %v", err)
	}
	if err := f.orchestrator.ProcessUploadedFile(ctx, importID, []byte(export)); err != nil {
		t.Fatalf("ProcessUploadedFile error: %v", err)
	}

	msgs, err := f.messages.List(ctx, importID, 0, 10)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if got := msgs[0].Entities.URLs; len(got) != 1 || got[0] != "https://scam.example/hidden" {
		t.Fatalf("urls = %v, want the hidden href", got)
	}
	if msgs[0].Risk == nil || msgs[0].Risk.Score < weightFewURLs {
		t.Fatalf("risk = %+v, want the URL rule to fire on the promoted link", msgs[0].Risk)
	}
}

func TestPipelineStageTimeout(t *testing.T) {
	f := newOrchestratorFixtureWithConfig(t, config.ImportConfig{
		BatchSize:        2,
		ProgressInterval: 1,
		StageTimeout:     time.Nanosecond,
	})
	ctx := context.Background()

	importID, err := f.orchestrator.CreateImport(ctx, "owner-1", "chat.txt", int64(len(sampleTranscript)), models.PlatformUnknown)
	if err != nil {
		t.Fatalf("CreateImport error: %v", err)
	}
	err = f.orchestrator.ProcessUploadedFile(ctx, importID, []byte(sampleTranscript))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	rec, _ := f.imports.Get(ctx, importID)
	if rec.Status != models.StatusFailed {
		t.Fatalf("status = %s, want FAILED", rec.Status)
	}
	if !strings.Contains(rec.Error, "timed out") {
		t.Fatalf("failure reason = %q, want a stage timeout", rec.Error)
	}
}

func TestPipelineDuplicateImport(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	runSampleImport(t, f, "owner-1")

	importID, err := f.orchestrator.CreateImport(ctx, "owner-1", "chat.txt", int64(len(sampleTranscript)), models.PlatformUnknown)
	if err != nil {
		t.Fatalf("CreateImport error: %v", err)
	}
	err = f.orchestrator.ProcessUploadedFile(ctx, importID, []byte(sampleTranscript))
	if !errors.Is(err, models.ErrDuplicateImport) {
		t.Fatalf("expected ErrDuplicateImport, got %v", err)
	}

	rec, _ := f.imports.Get(ctx, importID)
	if rec.Status != models.StatusFailed {
		t.Fatalf("duplicate status = %s, want FAILED", rec.Status)
	}
	if rec.Error == "" {
		t.Error("failure reason not recorded")
	}
}

func TestPipelineSameFileDifferentOwner(t *testing.T) {
	f := newOrchestratorFixture(t)
	runSampleImport(t, f, "owner-1")
	// Dedup is scoped per owner; another owner may import the same bytes
	runSampleImport(t, f, "owner-2")
}

func TestPipelineValidationFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	importID, err := f.orchestrator.CreateImport(ctx, "owner-1", "payload.exe", 10, models.PlatformUnknown)
	if err != nil {
		t.Fatalf("CreateImport error: %v", err)
	}
	err = f.orchestrator.ProcessUploadedFile(ctx, importID, []byte("MZ not a chat"))
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *models.ValidationError, got %v", err)
	}

	rec, _ := f.imports.Get(ctx, importID)
	if rec.Status != models.StatusFailed {
		t.Fatalf("status = %s, want FAILED", rec.Status)
	}
}

func TestPipelineUnknownPlatform(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	importID, err := f.orchestrator.CreateImport(ctx, "owner-1", "notes.txt", 10, models.PlatformUnknown)
	if err != nil {
		t.Fatalf("CreateImport error: %v", err)
	}
	err = f.orchestrator.ProcessUploadedFile(ctx, importID, []byte("dear diary, nothing matched today"))
	if !errors.Is(err, models.ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}

	rec, _ := f.imports.Get(ctx, importID)
	if rec.Status != models.StatusFailed {
		t.Fatalf("status = %s, want FAILED", rec.Status)
	}
}

func TestPipelineDeclaredPlatformFallback(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	// A long preamble pushes the recognizable lines past the detection
	// window, so only the platform declared at upload time places the file
	transcript := strings.Repeat("preamble text without any timestamp\n", 80) +
		"[01/02/2024, 10:15:00] Alice: hello"
	importID, err := f.orchestrator.CreateImport(ctx, "owner-1", "export.txt", int64(len(transcript)), models.PlatformWhatsApp)
	if err != nil {
		t.Fatalf("CreateImport error: %v", err)
	}
	if err := f.orchestrator.ProcessUploadedFile(ctx, importID, []byte(transcript)); err != nil {
		t.Fatalf("ProcessUploadedFile error: %v", err)
	}

	rec, _ := f.imports.Get(ctx, importID)
	if rec.Platform != models.PlatformWhatsApp || rec.MessageCount != 1 {
		t.Fatalf("platform=%s messages=%d, want whatsapp/1", rec.Platform, rec.MessageCount)
	}
	if len(rec.Warnings) == 0 {
		t.Error("expected unparsed-line warnings from the preamble")
	}
}

func TestGetStatusOwnerScoping(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	importID := runSampleImport(t, f, "owner-1")

	if _, err := f.orchestrator.GetStatus(ctx, importID, "owner-1"); err != nil {
		t.Fatalf("GetStatus error: %v", err)
	}
	if _, err := f.orchestrator.GetStatus(ctx, importID, "intruder"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if _, err := f.orchestrator.GetStatus(ctx, uuid.New(), "owner-1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestGetResults(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	importID := runSampleImport(t, f, "owner-1")

	report, err := f.orchestrator.GetResults(ctx, importID, "owner-1", 0, 0)
	if err != nil {
		t.Fatalf("GetResults error: %v", err)
	}
	if len(report.Participants) != 2 {
		t.Errorf("participants = %d, want 2", len(report.Participants))
	}
	if report.Messages != nil {
		t.Errorf("messages included without a limit: %d", len(report.Messages))
	}

	report, err = f.orchestrator.GetResults(ctx, importID, "owner-1", 0, 3)
	if err != nil {
		t.Fatalf("GetResults error: %v", err)
	}
	if len(report.Messages) != 3 {
		t.Errorf("messages = %d, want 3", len(report.Messages))
	}

	if _, err := f.orchestrator.GetResults(ctx, importID, "intruder", 0, 0); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
}

func TestGetResultsNotCompleted(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	importID, err := f.orchestrator.CreateImport(ctx, "owner-1", "chat.txt", 10, models.PlatformUnknown)
	if err != nil {
		t.Fatalf("CreateImport error: %v", err)
	}
	if _, err := f.orchestrator.GetResults(ctx, importID, "owner-1", 0, 0); !errors.Is(err, models.ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
}

func TestDeleteImportCascades(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	importID := runSampleImport(t, f, "owner-1")

	if err := f.orchestrator.DeleteImport(ctx, importID, "intruder"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if err := f.orchestrator.DeleteImport(ctx, importID, "owner-1"); err != nil {
		t.Fatalf("DeleteImport error: %v", err)
	}

	if _, err := f.imports.Get(ctx, importID); !errors.Is(err, models.ErrNotFound) {
		t.Fatal("record still present after delete")
	}
	msgs, _ := f.messages.List(ctx, importID, 0, 100)
	if len(msgs) != 0 {
		t.Fatalf("%d messages survived the delete", len(msgs))
	}
	ps, _ := f.participants.List(ctx, importID)
	if len(ps) != 0 {
		t.Fatalf("%d participants survived the delete", len(ps))
	}
}

func TestCreateImportValidation(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	if _, err := f.orchestrator.CreateImport(ctx, "", "chat.txt", 10, models.PlatformUnknown); !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty owner, got %v", err)
	}
	if _, err := f.orchestrator.CreateImport(ctx, "owner-1", "", 10, models.PlatformUnknown); !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty file name, got %v", err)
	}
}
