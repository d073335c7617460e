// Package worker provides a NATS worker that converts text objects announced
// on a subject, the message-bus counterpart of the storage notification.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-function/internal/converter"
	"github.com/book-expert/tts-function/internal/event"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const handleMessageTimeout = 30 * time.Second

var (
	// ErrTextKeyEmpty indicates that an event does not name a text object.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrTextBucketEmpty indicates that the worker has no source bucket.
	ErrTextBucketEmpty = errors.New("text bucket cannot be empty")
)

// Processor runs the conversion pipeline for one event.
type Processor interface {
	Process(ctx context.Context, evt event.Event) (converter.Result, error)
}

// NatsWorker listens for TextProcessedEvents on a NATS subject and converts
// the referenced text objects.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	queueGroup     string
	textBucket     string
	processor      Processor
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. An empty queueGroup
// subscribes without load balancing.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	queueGroup string,
	textBucket string,
	processor Processor,
	log *logger.Logger,
) (*NatsWorker, error) {
	if textBucket == "" {
		return nil, ErrTextBucketEmpty
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		queueGroup:     queueGroup,
		textBucket:     textBucket,
		processor:      processor,
		log:            log,
	}, nil
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.QueueSubscribe(w.subject, w.queueGroup, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for jobs on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	textEvent, err := parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	evt := event.StorageNotification(w.textBucket, textEvent.TextKey)
	evt.Voice = textEvent.Voice

	result, err := w.processor.Process(ctx, evt)
	if err != nil {
		w.log.Error("Failed to process TTS job for workflow %s: %v", textEvent.Header.WorkflowID, err)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: textEvent.Header.WorkflowID,
			EventID:    uuid.NewString(),
			UserID:     textEvent.Header.UserID,
			TenantID:   textEvent.Header.TenantID,
		},
		AudioKey:   result.Location.Key,
		PageNumber: textEvent.PageNumber,
		TotalPages: textEvent.TotalPages,
	}

	err = publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", textEvent.Header.WorkflowID, err)
	}
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
// Messages published without a reply subject are not answered.
func publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	if msg.Reply == "" {
		return nil
	}

	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var textEvent events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &textEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if textEvent.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &textEvent, nil
}
