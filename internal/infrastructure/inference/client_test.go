package inference

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
	"github.com/kirillkom/adtrack-console/internal/infrastructure/resilience"
)

func TestListModelsAcceptsBareNamesAndDescriptors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []domain.ModelDescriptor
	}{
		{
			name: "bare names infer audio support",
			body: `["hybrid_v1", "multimodal_v3"]`,
			want: []domain.ModelDescriptor{{Name: "hybrid_v1"}, {Name: "multimodal_v3", SupportsAudio: true}},
		},
		{
			name: "descriptor objects",
			body: `[{"name":"text-only","supports_audio":false},{"id":"speech","supportsAudio":true}]`,
			want: []domain.ModelDescriptor{{Name: "text-only"}, {Name: "speech", SupportsAudio: true}},
		},
		{
			name: "wrapped list",
			body: `{"models":["deberta_v2"]}`,
			want: []domain.ModelDescriptor{{Name: "deberta_v2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/models" {
					http.NotFound(w, r)
					return
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			got := New(server.URL, Options{}).ListModels(context.Background())
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d models, got %+v", len(tt.want), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("model %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestListModelsReturnsEmptyOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	if got := New(server.URL, Options{}).ListModels(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty list on 500, got %+v", got)
	}

	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer malformed.Close()
	if got := New(malformed.URL, Options{}).ListModels(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty list on malformed body, got %+v", got)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	if got := New(closed.URL, Options{}).ListModels(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty list for unreachable backend, got %+v", got)
	}
}

func TestSubmitSendsMultipartFields(t *testing.T) {
	captured := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict/cha" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			return
		}
		captured["model_name"] = r.FormValue("model_name")
		for _, field := range []string{"file", "audio_file", "segmentation_file"} {
			file, header, err := r.FormFile(field)
			if err != nil {
				continue
			}
			raw, _ := io.ReadAll(file)
			_ = file.Close()
			captured[field] = header.Filename + ":" + string(raw)
		}
		_, _ = w.Write([]byte(`{"prediction":"AD","probability":0.8,"model_version":"v3_multimodal"}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{})
	raw, err := client.Submit(context.Background(), domain.InferenceRequest{
		Transcript:   &domain.InputFile{Name: "p1.cha", Data: []byte("*PAR: hello")},
		Audio:        &domain.InputFile{Name: "p1.wav", Data: []byte("RIFF")},
		Segmentation: &domain.InputFile{Name: "p1.csv", Data: []byte("start,end")},
		ModelName:    "multimodal_v3",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if raw["prediction"] != "AD" {
		t.Fatalf("expected raw response verbatim, got %+v", raw)
	}

	want := map[string]string{
		"model_name":        "multimodal_v3",
		"file":              "p1.cha:*PAR: hello",
		"audio_file":        "p1.wav:RIFF",
		"segmentation_file": "p1.csv:start,end",
	}
	for field, value := range want {
		if captured[field] != value {
			t.Fatalf("field %s: expected %q, got %q", field, value, captured[field])
		}
	}
}

func TestSubmitExtractsBackendDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "string detail", status: http.StatusBadRequest, body: `{"detail":"malformed transcript"}`, want: "malformed transcript"},
		{name: "validation list", status: http.StatusUnprocessableEntity, body: `{"detail":[{"msg":"field required"},{"msg":"bad model"}]}`, want: "field required; bad model"},
		{name: "plain text fallback", status: http.StatusBadRequest, body: `nope`, want: domain.GenericFailureMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := New(server.URL, Options{}).Submit(context.Background(), domain.InferenceRequest{
				Transcript: &domain.InputFile{Name: "a.cha"},
			})
			var inferenceErr *domain.InferenceError
			if !errors.As(err, &inferenceErr) {
				t.Fatalf("expected InferenceError, got %T %v", err, err)
			}
			if inferenceErr.Error() != tt.want {
				t.Fatalf("expected message %q, got %q", tt.want, inferenceErr.Error())
			}
			if inferenceErr.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, inferenceErr.StatusCode)
			}
		})
	}
}

func TestSubmitTimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := New(server.URL, Options{Timeout: 50 * time.Millisecond}).Submit(context.Background(), domain.InferenceRequest{
		Transcript: &domain.InputFile{Name: "slow.cha"},
	})
	var inferenceErr *domain.InferenceError
	if !errors.As(err, &inferenceErr) {
		t.Fatalf("expected InferenceError, got %T %v", err, err)
	}
	if !inferenceErr.Timeout || !strings.Contains(inferenceErr.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %+v", inferenceErr)
	}
}

func TestSubmitRejectsNonObjectBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1,2,3]`))
	}))
	defer server.Close()

	_, err := New(server.URL, Options{}).Submit(context.Background(), domain.InferenceRequest{
		Transcript: &domain.InputFile{Name: "a.cha"},
	})
	if err == nil || err.Error() != "malformed inference response" {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestSubmitRetriesServiceUnavailable(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"detail":"model warming up"}`))
			return
		}
		_, _ = w.Write([]byte(`{"confidence":0.7,"is_dementia":false}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Policy{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	}, nil)
	raw, err := New(server.URL, Options{Executor: exec}).Submit(context.Background(), domain.InferenceRequest{
		Transcript: &domain.InputFile{Name: "a.cha"},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if attempts != 2 || raw["confidence"] != 0.7 {
		t.Fatalf("expected success on second attempt, attempts=%d raw=%+v", attempts, raw)
	}
}

func TestSubmitPredictPath(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		route string
	}{
		{name: "default transcript route", path: "", route: "/predict/cha"},
		{name: "configured route", path: "predict", route: "/predict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST "+tt.route, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"prediction":"HEALTHY CONTROL","confidence":0.9}`))
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			raw, err := New(server.URL, Options{PredictPath: tt.path}).Submit(context.Background(), domain.InferenceRequest{
				Transcript: &domain.InputFile{Name: "p1.cha", Data: []byte("*PAR: hello")},
				ModelName:  "hybrid_v1",
			})
			if err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			if raw["prediction"] != "HEALTHY CONTROL" {
				t.Fatalf("unexpected response %+v", raw)
			}
		})
	}
}

func TestSubmitTimeoutBoundsRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-time.After(60 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		w.WriteHeader(http.StatusGatewayTimeout)
		_, _ = w.Write([]byte(`{"detail":"upstream timeout"}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Policy{
		RetryMaxAttempts:    5,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	}, nil)
	client := New(server.URL, Options{Timeout: 100 * time.Millisecond, Executor: exec})

	start := time.Now()
	_, err := client.Submit(context.Background(), domain.InferenceRequest{
		Transcript: &domain.InputFile{Name: "slow.cha"},
	})
	elapsed := time.Since(start)

	var inferenceErr *domain.InferenceError
	if !errors.As(err, &inferenceErr) {
		t.Fatalf("expected InferenceError, got %T %v", err, err)
	}
	if !inferenceErr.Timeout {
		t.Fatalf("expected timeout error, got %+v", inferenceErr)
	}
	if got := attempts.Load(); got >= 5 {
		t.Fatalf("expected the deadline to cut retries short, got %d attempts", got)
	}
	if elapsed > time.Second {
		t.Fatalf("expected one timeout budget for the whole unit, took %s", elapsed)
	}
}
