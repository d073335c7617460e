// Package event classifies raw function invocations into the two supported
// trigger shapes and derives the audio object key for each.
package event

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	lambdaevents "github.com/aws/aws-lambda-go/events"
)

var (
	// ErrUnrecognizedEvent indicates that the payload is neither a direct request nor a storage notification.
	ErrUnrecognizedEvent = errors.New("unrecognized event shape")
	// ErrMalformedNotification indicates a storage notification without a usable bucket and key.
	ErrMalformedNotification = errors.New("malformed storage notification")
	// ErrInvalidBody indicates that a direct request body could not be decoded.
	ErrInvalidBody = errors.New("invalid request body")
)

// Kind discriminates the Event union.
type Kind int

const (
	// KindUnknown is the zero value and never returned with a nil error.
	KindUnknown Kind = iota
	// KindDirectText is a request/response call carrying literal text.
	KindDirectText
	// KindStorageNotification signals that a text object was created in a bucket.
	KindStorageNotification
)

func (k Kind) String() string {
	switch k {
	case KindDirectText:
		return "api"
	case KindStorageNotification:
		return "storage"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a classified invocation. Text is set for KindDirectText,
// Bucket and Key (already percent-decoded) for KindStorageNotification.
type Event struct {
	Kind   Kind
	Text   string
	Bucket string
	Key    string
	// Voice optionally overrides the configured voice.
	Voice string
}

// DirectText builds a direct request event.
func DirectText(text string) Event {
	return Event{Kind: KindDirectText, Text: text}
}

// StorageNotification builds a storage notification event for an already decoded key.
func StorageNotification(bucket, key string) Event {
	return Event{Kind: KindStorageNotification, Bucket: bucket, Key: key}
}

type directPayload struct {
	Text string `json:"text"`
}

// Classify decodes a raw invocation payload. A payload carrying a "body"
// member is a direct request regardless of its other members. Otherwise the
// first record of a "Records" array is used as a storage notification.
//
// A direct request whose body cannot be decoded returns a KindDirectText
// event together with an error wrapping ErrInvalidBody, so callers can still
// answer with a client error.
func Classify(raw []byte) (Event, error) {
	var fields map[string]json.RawMessage

	err := json.Unmarshal(raw, &fields)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrUnrecognizedEvent, err)
	}

	if body, ok := fields["body"]; ok {
		return classifyDirect(body, fields["isBase64Encoded"])
	}

	if records, ok := fields["Records"]; ok {
		return classifyStorage(records)
	}

	return Event{}, ErrUnrecognizedEvent
}

func classifyDirect(body, base64Flag json.RawMessage) (Event, error) {
	payload, err := directBody(body, base64Flag)
	if err != nil {
		return DirectText(""), err
	}

	if payload == nil {
		return DirectText(""), nil
	}

	var direct directPayload

	err = json.Unmarshal(payload, &direct)
	if err != nil {
		return DirectText(""), fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	return DirectText(direct.Text), nil
}

// directBody returns the JSON document carried by the body member, or nil
// when the body is null.
func directBody(body, base64Flag json.RawMessage) ([]byte, error) {
	if string(body) == "null" {
		return nil, nil
	}

	var encoded string

	err := json.Unmarshal(body, &encoded)
	if err != nil {
		// Direct invocations may carry the payload object itself.
		var object map[string]json.RawMessage
		if json.Unmarshal(body, &object) == nil {
			return body, nil
		}

		return nil, fmt.Errorf("%w: body is neither a string nor an object", ErrInvalidBody)
	}

	var isBase64 bool
	if len(base64Flag) > 0 {
		err = json.Unmarshal(base64Flag, &isBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: isBase64Encoded is not a boolean: %w", ErrInvalidBody, err)
		}
	}

	if !isBase64 {
		return []byte(encoded), nil
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	return decoded, nil
}

func classifyStorage(raw json.RawMessage) (Event, error) {
	var records []lambdaevents.S3EventRecord

	err := json.Unmarshal(raw, &records)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedNotification, err)
	}

	if len(records) == 0 {
		return Event{}, fmt.Errorf("%w: no records", ErrMalformedNotification)
	}

	record := records[0]
	bucket := record.S3.Bucket.Name

	if bucket == "" || record.S3.Object.Key == "" {
		return Event{}, fmt.Errorf("%w: missing bucket name or object key", ErrMalformedNotification)
	}

	key, err := DecodeObjectKey(record.S3.Object.Key)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedNotification, err)
	}

	return StorageNotification(bucket, key), nil
}
