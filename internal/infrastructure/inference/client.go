package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
	"github.com/kirillkom/adtrack-console/internal/infrastructure/resilience"
)

const (
	DefaultTimeout     = 60 * time.Second
	DefaultPredictPath = "/predict/cha"

	modelsPath = "/models"

	fieldTranscript   = "file"
	fieldAudio        = "audio_file"
	fieldSegmentation = "segmentation_file"
	fieldModelName    = "model_name"
)

// audioMarkers flag a bare model name as audio capable.
var audioMarkers = []string{"multimodal", "audio", "v3"}

type Options struct {
	Timeout     time.Duration
	PredictPath string
	Executor    *resilience.Executor
	// HTTPClient overrides the default client; its Timeout is replaced by
	// Options.Timeout.
	HTTPClient *http.Client
}

// Client calls the remote inference API.
type Client struct {
	baseURL     string
	predictPath string
	timeout     time.Duration
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		httpClient = &copied
	}
	httpClient.Timeout = timeout

	predictPath := strings.TrimSpace(opts.PredictPath)
	if predictPath == "" {
		predictPath = DefaultPredictPath
	}
	if !strings.HasPrefix(predictPath, "/") {
		predictPath = "/" + predictPath
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		predictPath: predictPath,
		timeout:     timeout,
		httpClient:  httpClient,
		executor:    opts.Executor,
	}
}

// ListModels returns the advertised models, or an empty list when the
// backend cannot be reached or answers with something unusable.
func (c *Client) ListModels(ctx context.Context) []domain.ModelDescriptor {
	body, err := resilience.Call(ctx, c.executor, "inference.models", func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, modelsPath, "list models")
	}, classifyInferenceError)
	if err != nil {
		slog.Warn("inference_list_models_failed", "error", err)
		return nil
	}

	models, err := decodeModels(body)
	if err != nil {
		slog.Warn("inference_list_models_malformed", "error", err)
		return nil
	}
	return models
}

// Submit posts one request unit and returns the backend's JSON object
// untouched. The client timeout bounds the whole unit, retries included.
func (c *Client) Submit(ctx context.Context, req domain.InferenceRequest) (domain.RawPrediction, error) {
	form, err := buildPredictForm(req)
	if err != nil {
		return nil, &domain.InferenceError{Message: "could not build inference request", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := resilience.Call(ctx, c.executor, "inference.submit", func(ctx context.Context) (domain.RawPrediction, error) {
		body, err := c.postMultipart(ctx, c.predictPath, form, "predict")
		if err != nil {
			return nil, err
		}
		var out domain.RawPrediction
		if err := json.Unmarshal(body, &out); err != nil || out == nil {
			return nil, &domain.InferenceError{Message: "malformed inference response", Err: err}
		}
		return out, nil
	}, classifyInferenceError)
	if err != nil {
		return nil, asInferenceError(err)
	}
	return raw, nil
}

func decodeModels(body []byte) ([]domain.ModelDescriptor, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		var wrapped struct {
			Models []json.RawMessage `json:"models"`
		}
		if wrapErr := json.Unmarshal(body, &wrapped); wrapErr != nil {
			return nil, fmt.Errorf("decode models: %w", err)
		}
		entries = wrapped.Models
	}

	models := make([]domain.ModelDescriptor, 0, len(entries))
	for _, entry := range entries {
		if model, ok := decodeModelEntry(entry); ok {
			models = append(models, model)
		}
	}
	return models, nil
}

func decodeModelEntry(entry json.RawMessage) (domain.ModelDescriptor, bool) {
	var name string
	if err := json.Unmarshal(entry, &name); err == nil {
		name = strings.TrimSpace(name)
		if name == "" {
			return domain.ModelDescriptor{}, false
		}
		return domain.ModelDescriptor{Name: name, SupportsAudio: inferAudioSupport(name)}, true
	}

	var obj struct {
		Name               string `json:"name"`
		ID                 string `json:"id"`
		Model              string `json:"model"`
		SupportsAudio      *bool  `json:"supports_audio"`
		SupportsAudioCamel *bool  `json:"supportsAudio"`
	}
	if err := json.Unmarshal(entry, &obj); err != nil {
		return domain.ModelDescriptor{}, false
	}
	name = firstNonEmpty(obj.Name, obj.ID, obj.Model)
	if name == "" {
		return domain.ModelDescriptor{}, false
	}

	model := domain.ModelDescriptor{Name: name, SupportsAudio: inferAudioSupport(name)}
	switch {
	case obj.SupportsAudio != nil:
		model.SupportsAudio = *obj.SupportsAudio
	case obj.SupportsAudioCamel != nil:
		model.SupportsAudio = *obj.SupportsAudioCamel
	}
	return model, true
}

func inferAudioSupport(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range audioMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
