package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/book-expert/tts-function/internal/event"
	"github.com/book-expert/tts-function/internal/monitoring"
	"github.com/google/uuid"
)

// Invoke is the function entry point. It classifies the raw payload, runs the
// pipeline and renders the proxy response. Blank direct text is the only
// failure answered with a response; everything else, including a body that
// is not a JSON object, is returned as an error so the runtime reports the
// invocation as failed.
func (c *Converter) Invoke(ctx context.Context, raw json.RawMessage) (lambdaevents.APIGatewayProxyResponse, error) {
	requestID := invocationID(ctx)
	c.log.Info("[%s] Event: %s", requestID, compactJSON(raw))

	evt, err := event.Classify(raw)
	if err != nil {
		c.metrics.ObserveError(monitoring.StageClassify)
		c.log.Error("[%s] Failed to classify event: %v", requestID, err)

		return lambdaevents.APIGatewayProxyResponse{}, fmt.Errorf("failed to classify event: %w", err)
	}

	result, err := c.Process(ctx, evt)
	if err != nil {
		c.log.Error("[%s] Conversion failed: %v", requestID, err)

		return lambdaevents.APIGatewayProxyResponse{}, err
	}

	return result.ProxyResponse()
}

// invocationID returns the platform request ID, or a fresh UUID outside Lambda.
func invocationID(ctx context.Context) string {
	lc, ok := lambdacontext.FromContext(ctx)
	if ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}

	return uuid.NewString()
}

func compactJSON(raw []byte) string {
	var buf bytes.Buffer

	err := json.Compact(&buf, raw)
	if err != nil {
		return string(raw)
	}

	return buf.String()
}
