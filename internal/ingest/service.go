package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oakmere/fleetstate/internal/directory"
	"github.com/oakmere/fleetstate/internal/infrastructure/mqtt"
	"github.com/oakmere/fleetstate/internal/state"
)

// defaultBatchTimeout bounds the processing of one event batch.
const defaultBatchTimeout = 30 * time.Second

// Logger defines the logging interface used by the ingest service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscriber is the slice of the MQTT client the service needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Batch is the wire format published to ingest topics. The embedded
// merge request carries the events; the optional tokens identify the
// device when the batch creates a record on first contact.
type Batch struct {
	DeviceToken     string `json:"device,omitempty"`
	DeviceTypeToken string `json:"device_type,omitempty"`
	state.EventMergeRequest
}

// Service consumes event batches from per-assignment ingest topics.
type Service struct {
	subscriber Subscriber
	manager    *state.Manager
	resolver   directory.Resolver
	topics     mqtt.Topics
	qos        byte
	timeout    time.Duration
	logger     Logger
}

// NewService creates an ingest service.
//
// Parameters:
//   - subscriber: MQTT client used to subscribe to ingest topics
//   - manager: State manager receiving the decoded batches
//   - resolver: Token resolver for assignment and device tokens
//   - topics: Topic builder carrying the configured prefix
//   - qos: QoS level for the ingest subscription
//
// Returns:
//   - *Service: Service ready to Start
func NewService(subscriber Subscriber, manager *state.Manager, resolver directory.Resolver, topics mqtt.Topics, qos byte) *Service {
	return &Service{
		subscriber: subscriber,
		manager:    manager,
		resolver:   resolver,
		topics:     topics,
		qos:        qos,
		timeout:    defaultBatchTimeout,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Start subscribes to the ingest topic pattern. Message handling runs on
// the MQTT client's goroutines until the client disconnects.
func (s *Service) Start() error {
	pattern := s.topics.AllIngest()
	if err := s.subscriber.Subscribe(pattern, s.qos, s.handleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", pattern, err)
	}
	s.logger.Info("ingest started", "pattern", pattern, "qos", s.qos)
	return nil
}

// handleMessage processes one ingest message. Malformed payloads and
// unknown assignment tokens are dropped with a log entry so a bad
// producer cannot wedge the subscription.
func (s *Service) handleMessage(topic string, payload []byte) error {
	token, ok := s.topics.IngestToken(topic)
	if !ok {
		return fmt.Errorf("unexpected ingest topic %q", topic)
	}

	var batch Batch
	if err := json.Unmarshal(payload, &batch); err != nil {
		s.logger.Warn("dropping malformed batch", "token", token, "error", err)
		return nil
	}
	if batch.IsEmpty() {
		s.logger.Debug("dropping empty batch", "token", token)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.processBatch(ctx, token, &batch); err != nil {
		return fmt.Errorf("processing batch for %q: %w", token, err)
	}
	return nil
}

// processBatch resolves the assignment, locates or creates its state
// record, and folds the batch in.
func (s *Service) processBatch(ctx context.Context, token string, batch *Batch) error {
	assignmentID, err := s.resolver.AssignmentID(ctx, token)
	if err != nil {
		if errors.Is(err, directory.ErrTokenNotFound) {
			s.logger.Warn("dropping batch for unknown assignment", "token", token)
			return nil
		}
		return fmt.Errorf("resolving assignment: %w", err)
	}

	st, err := s.manager.GetStateByAssignment(ctx, assignmentID)
	if errors.Is(err, state.ErrStateNotFound) {
		st, err = s.createForAssignment(ctx, assignmentID, batch)
	}
	if err != nil {
		return err
	}

	if _, err := s.manager.MergeState(ctx, st.ID, &batch.EventMergeRequest); err != nil {
		return err
	}

	s.logger.Debug("batch merged", "assignment_id", assignmentID, "state_id", st.ID)
	return nil
}

// createForAssignment creates the state record on first contact. The
// identity comes from the batch's device tokens when present, otherwise
// from the newest event. A concurrent creator winning the race is fine;
// the record is re-read.
func (s *Service) createForAssignment(ctx context.Context, assignmentID string, batch *Batch) (*state.DeviceState, error) {
	req := state.CreateRequest{DeviceAssignmentID: assignmentID}

	if newest := newestBatchEvent(batch); newest != nil {
		req.DeviceID = newest.DeviceID
		req.CustomerID = newest.CustomerID
		req.AreaID = newest.AreaID
		req.AssetID = newest.AssetID
		eventDate := newest.EventDate
		req.LastInteractionDate = &eventDate
	}

	if batch.DeviceToken != "" {
		deviceID, err := s.resolver.DeviceID(ctx, batch.DeviceToken)
		if err != nil && !errors.Is(err, directory.ErrTokenNotFound) {
			return nil, fmt.Errorf("resolving device token: %w", err)
		}
		if err == nil {
			req.DeviceID = deviceID
		}
	}
	if batch.DeviceTypeToken != "" {
		typeID, err := s.resolver.DeviceTypeID(ctx, batch.DeviceTypeToken)
		if err != nil && !errors.Is(err, directory.ErrTokenNotFound) {
			return nil, fmt.Errorf("resolving device type token: %w", err)
		}
		if err == nil {
			req.DeviceTypeID = typeID
		}
	}

	st, err := s.manager.CreateState(ctx, req)
	if errors.Is(err, state.ErrStateExists) {
		return s.manager.GetStateByAssignment(ctx, assignmentID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("state created on first contact",
		"state_id", st.ID, "assignment_id", assignmentID, "device_id", st.DeviceID)
	return st, nil
}

// newestBatchEvent returns the base fields of the latest event in the
// batch across all streams.
func newestBatchEvent(batch *Batch) *state.Event {
	var newest *state.Event
	consider := func(ev *state.Event) {
		if newest == nil || ev.EventDate.After(newest.EventDate) {
			newest = ev
		}
	}
	for i := range batch.Locations {
		consider(&batch.Locations[i].Event)
	}
	for i := range batch.Measurements {
		consider(&batch.Measurements[i].Event)
	}
	for i := range batch.Alerts {
		consider(&batch.Alerts[i].Event)
	}
	return newest
}
