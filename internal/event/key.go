package event

import (
	"fmt"
	"net/url"
	"strings"
)

// DirectRequestKey is the object key used for every direct request. Each
// direct request overwrites the previous audio.
const DirectRequestKey = "api_request.mp3"

const audioExtension = ".mp3"

// DecodeObjectKey percent-decodes a key from a storage notification, with
// '+' decoded as a space.
func DecodeObjectKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode object key %q: %w", raw, err)
	}

	return key, nil
}

// AudioKey replaces everything from the last '.' of inputKey with ".mp3".
// A key without a '.' gets ".mp3" appended. The whole key is searched, so a
// dot in a directory name counts when the base name has none.
func AudioKey(inputKey string) string {
	if idx := strings.LastIndex(inputKey, "."); idx >= 0 {
		inputKey = inputKey[:idx]
	}

	return inputKey + audioExtension
}

// OutputKey returns the destination key for a classified event.
func OutputKey(evt Event) string {
	if evt.Kind == KindStorageNotification {
		return AudioKey(evt.Key)
	}

	return DirectRequestKey
}
