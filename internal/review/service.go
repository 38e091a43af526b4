package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/tariff/internal/classifier"
	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/service"
	"github.com/Veraticus/tariff/internal/storage"
	"github.com/Veraticus/tariff/internal/telemetry"
)

// ErrNoUser is returned when no reviewer is signed in.
var ErrNoUser = errors.New("no signed-in user")

// Config holds review options.
type Config struct {
	MaxAlternatives int
	// RulingTimeout bounds each assistant call.
	RulingTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxAlternatives: 3,
		RulingTimeout:   15 * time.Second,
	}
}

// Service opens and finalizes review sessions.
type Service struct {
	storage service.Storage
	later   *LaterStore
	ruler   classifier.Ruler
	catalog *confidence.Catalog
	metrics *telemetry.Metrics
	logger  *slog.Logger
	config  Config
}

// Option customizes a Service.
type Option func(*Service)

// WithRuler lets the assistant answer evidence through the rulings service,
// falling back to canned replies when it fails.
func WithRuler(r classifier.Ruler) Option {
	return func(s *Service) { s.ruler = r }
}

// WithMetrics records review activity.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithCatalog sets the issue catalog.
func WithCatalog(c *confidence.Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

// NewService creates a review service.
func NewService(storage service.Storage, later *LaterStore, config Config, opts ...Option) *Service {
	if config.MaxAlternatives < 0 {
		config.MaxAlternatives = 0
	}
	if config.RulingTimeout <= 0 {
		config.RulingTimeout = DefaultConfig().RulingTimeout
	}
	s := &Service{
		storage: storage,
		later:   later,
		catalog: confidence.DefaultCatalog(),
		logger:  slog.Default(),
		config:  config,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "review")
	return s
}

// Open starts a review of one of the user's classification results.
func (s *Service) Open(ctx context.Context, userID string, resultID int64) (*Session, error) {
	const op = "review.Open"
	if strings.TrimSpace(userID) == "" {
		return nil, common.E(common.KindUnauthenticated, op, ErrNoUser)
	}

	result, err := s.storage.GetClassificationResult(ctx, resultID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.E(common.KindNotFound, op, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	product, err := s.storage.GetProduct(ctx, result.ProductID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.E(common.KindNotFound, op, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if product.UserID != userID {
		return nil, common.E(common.KindForbidden, op, storage.ErrForbidden)
	}

	session := NewSession(userID, *product, *result, s.catalog, s.config.MaxAlternatives)
	s.logger.Info("Review opened",
		"session_id", session.ID,
		"result_id", result.ID,
		"confidence", confidence.Percent(result.Confidence))
	return session, nil
}

// Submit applies an event to the session. For evidence the assistant reply
// comes from the rulings service when one is configured and answers.
func (s *Service) Submit(ctx context.Context, session *Session, ev Event) ([]ChatMessage, error) {
	before := session.State.Current
	prior := len(session.Transcript)
	msgs, err := session.Apply(ev)
	if err != nil {
		return nil, err
	}
	if boost := confidence.Points(session.State.Current) - confidence.Points(before); boost > 0 {
		s.metrics.ConfidenceRaised(boost)
	}

	evidence, ok := ev.(SubmitEvidence)
	if !ok || s.ruler == nil {
		return msgs, nil
	}

	reply, err := s.ruling(ctx, session, session.Transcript[:prior], evidence.Text)
	if err != nil {
		s.logger.Warn("Assistant ruling failed, using canned reply",
			"session_id", session.ID,
			"error", err)
		s.metrics.AssistantFellBack()
		return msgs, nil
	}
	session.replaceLastReply(reply)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			msgs[i].Text = reply
			break
		}
	}
	return msgs, nil
}

// ruling asks the rulings service about message. History is the transcript
// as it stood before the message was submitted.
func (s *Service) ruling(ctx context.Context, session *Session, prior []ChatMessage, message string) (string, error) {
	history := make([]classifier.ChatTurn, 0, len(prior))
	for _, m := range prior {
		history = append(history, classifier.ChatTurn{Role: string(m.Role), Content: m.Text})
	}
	req := classifier.RulingRequest{
		Message: strings.TrimSpace(message),
		Product: classifier.ProductContext{
			Name:        session.Product.DisplayName(),
			Description: session.Product.Description,
			HTS:         session.Selected,
			Origin:      session.Product.CountryOfOrigin,
		},
		History: history,
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.RulingTimeout)
	defer cancel()
	reply, err := s.ruler.Ruling(callCtx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", classifier.ErrEmptyResponse
	}
	return reply, nil
}

// Approve records the reviewer's approval of the selected code and closes the
// session. Ownership is checked before anything is written.
func (s *Service) Approve(ctx context.Context, session *Session) (*model.ApprovalRecord, error) {
	const op = "review.Approve"
	if !session.Open() {
		return nil, common.E(common.KindConflict, op, fmt.Errorf("%w: %s", ErrSessionClosed, session.Status))
	}

	record := &model.ApprovalRecord{
		ClassificationResultID: session.Result.ID,
		UserID:                 session.UserID,
		Approved:               true,
		ChosenHTS:              session.Selected,
		Notes:                  session.Notes,
	}
	if err := s.storage.RecordApproval(ctx, record); err != nil {
		switch {
		case errors.Is(err, storage.ErrForbidden):
			return nil, common.E(common.KindForbidden, op, err)
		case errors.Is(err, common.ErrNotFound):
			return nil, common.E(common.KindNotFound, op, err)
		}
		return nil, fmt.Errorf("failed to record approval: %w", err)
	}

	session.close(StatusApproved)
	s.metrics.ReviewDecision(string(StatusApproved))
	s.logger.Info("Review approved",
		"session_id", session.ID,
		"result_id", session.Result.ID,
		"hts", session.Selected,
		"confidence", confidence.Percent(session.State.Current))
	return record, nil
}

// Reject closes the session without recording an approval.
func (s *Service) Reject(_ context.Context, session *Session) error {
	return s.finish(session, StatusRejected)
}

// Cancel closes the session without recording anything.
func (s *Service) Cancel(_ context.Context, session *Session) error {
	return s.finish(session, StatusCancelled)
}

// ReviewLater saves a lightweight entry for follow-up and closes the session.
func (s *Service) ReviewLater(_ context.Context, session *Session) (model.ReviewLaterItem, error) {
	const op = "review.ReviewLater"
	if !session.Open() {
		return model.ReviewLaterItem{}, common.E(common.KindConflict, op, fmt.Errorf("%w: %s", ErrSessionClosed, session.Status))
	}
	if s.later == nil {
		return model.ReviewLaterItem{}, common.E(common.KindInvalid, op, common.ErrMissingConfig)
	}

	item := model.ReviewLaterItem{
		ResultID:    session.Result.ID,
		ProductName: session.Product.DisplayName(),
		SKU:         session.Product.SKU,
		HTS:         session.Selected,
		Confidence:  session.State.Current,
		Origin:      session.Product.CountryOfOrigin,
		Vendor:      session.Product.Vendor,
		UnitCost:    session.Product.UnitCost,
		SavedAt:     time.Now().UTC(),
		Status:      model.ReviewLaterStatus,
	}
	if err := s.later.Append(item); err != nil {
		return model.ReviewLaterItem{}, err
	}

	session.close(StatusDeferred)
	s.metrics.ReviewDecision(string(StatusDeferred))
	s.logger.Info("Review deferred", "session_id", session.ID, "result_id", session.Result.ID)
	return item, nil
}

func (s *Service) finish(session *Session, status Status) error {
	if !session.Open() {
		return common.E(common.KindConflict, "review.finish", fmt.Errorf("%w: %s", ErrSessionClosed, session.Status))
	}
	session.close(status)
	s.metrics.ReviewDecision(string(status))
	s.logger.Info("Review closed", "session_id", session.ID, "status", status)
	return nil
}
