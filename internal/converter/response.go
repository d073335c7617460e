package converter

import (
	"encoding/json"
	"fmt"
	"net/http"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/book-expert/tts-function/internal/core"
)

// Response messages.
const (
	MessageFromAPI     = "Audio generated from API"
	MessageFromStorage = "Audio generated from S3 upload"
	MessageMissingText = "Missing 'text' in request"
)

const (
	statusOK         = http.StatusOK
	statusBadRequest = http.StatusBadRequest
)

// Result describes the outcome of one conversion. Error is set only for
// client errors; Location and Locator only on success.
type Result struct {
	StatusCode int
	Message    string
	Error      string
	Location   core.Location
	Locator    string
}

type successBody struct {
	Message   string `json:"message"`
	AudioFile string `json:"audio_file"`
}

type errorBody struct {
	Error string `json:"error"`
}

func badRequest(message string) Result {
	return Result{StatusCode: statusBadRequest, Error: message}
}

// Body returns the JSON document carried in the response body.
func (r Result) Body() ([]byte, error) {
	var payload any = successBody{Message: r.Message, AudioFile: r.Locator}
	if r.StatusCode != statusOK {
		payload = errorBody{Error: r.Error}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response body: %w", err)
	}

	return body, nil
}

// ProxyResponse renders the Result as an API Gateway proxy response.
func (r Result) ProxyResponse() (lambdaevents.APIGatewayProxyResponse, error) {
	body, err := r.Body()
	if err != nil {
		return lambdaevents.APIGatewayProxyResponse{}, err
	}

	return lambdaevents.APIGatewayProxyResponse{
		StatusCode: r.StatusCode,
		Body:       string(body),
	}, nil
}
