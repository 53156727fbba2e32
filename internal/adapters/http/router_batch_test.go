package httpadapter

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/adtrack-console/internal/config"
	"github.com/kirillkom/adtrack-console/internal/core/domain"
)

type formFile struct {
	field string
	name  string
	body  string
}

func multipartRequest(t *testing.T, files []formFile, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte(f.body)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/batches", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHealthzEndpoint(t *testing.T) {
	res := serve(newTestHandler(config.Config{}), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestListModelsLoadsEmptyCatalog(t *testing.T) {
	deps := newTestDeps()
	deps.catalog.models = nil
	deps.catalog.loaded = []domain.ModelDescriptor{{Name: "v2"}}

	res := serve(deps.handler(config.Config{}), httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp struct {
		Models  []domain.ModelDescriptor `json:"models"`
		Default string                   `json:"default"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Models) != 1 || resp.Default != "v2" || deps.catalog.loads != 1 {
		t.Fatalf("unexpected response %+v after %d loads", resp, deps.catalog.loads)
	}
}

func TestSubmitBatchStagesFiles(t *testing.T) {
	deps := newTestDeps()
	req := multipartRequest(t, []formFile{
		{field: "transcripts", name: "p1.cha", body: "*PAR: one"},
		{field: "transcripts", name: "p2.CHA", body: "*PAR: two"},
		{field: "audio", name: "a.wav", body: "RIFF"},
		{field: "segmentation", name: "seg.csv", body: "start,end"},
	}, map[string]string{"model": "multimodal_v3"})

	res := serve(deps.handler(config.Config{}), req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}

	var snap domain.BatchSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.State != domain.BatchSubmitting || snap.Progress.Total != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	input := deps.batch.lastStarted()
	if len(input.Transcripts) != 2 || input.Transcripts[0].Name != "p1.cha" || string(input.Transcripts[1].Data) != "*PAR: two" {
		t.Fatalf("unexpected transcripts: %+v", input.Transcripts)
	}
	if input.Audio == nil || input.Audio.Name != "a.wav" || input.Segmentation == nil {
		t.Fatalf("expected audio and segmentation, got %+v", input)
	}
	if input.Model != "multimodal_v3" {
		t.Fatalf("expected requested model, got %q", input.Model)
	}
}

func TestSubmitBatchValidation(t *testing.T) {
	tests := []struct {
		name   string
		files  []formFile
		fields map[string]string
		flags  func(*domain.FeatureFlags)
		want   int
	}{
		{
			name:  "nothing staged",
			files: nil,
			want:  http.StatusBadRequest,
		},
		{
			name:  "wrong transcript extension",
			files: []formFile{{field: "transcripts", name: "notes.docx", body: "x"}},
			want:  http.StatusBadRequest,
		},
		{
			name:  "wrong audio extension",
			files: []formFile{{field: "audio", name: "clip.avi", body: "x"}},
			want:  http.StatusBadRequest,
		},
		{
			name: "two audio files",
			files: []formFile{
				{field: "audio", name: "a.wav", body: "x"},
				{field: "audio", name: "b.wav", body: "x"},
			},
			want: http.StatusBadRequest,
		},
		{
			name: "multiple transcripts disabled",
			files: []formFile{
				{field: "transcripts", name: "p1.cha", body: "x"},
				{field: "transcripts", name: "p2.cha", body: "x"},
			},
			flags: func(f *domain.FeatureFlags) { f.MultipleFiles = false },
			want:  http.StatusBadRequest,
		},
		{
			name:   "audio only",
			files:  []formFile{{field: "audio", name: "a.mp3", body: "x"}},
			fields: map[string]string{"model": "multimodal_v3"},
			want:   http.StatusAccepted,
		},
		{
			name:   "unknown model",
			files:  []formFile{{field: "transcripts", name: "p1.cha", body: "x"}},
			fields: map[string]string{"model": "gpt_v9"},
			want:   http.StatusBadRequest,
		},
		{
			name:   "audio with text-only model",
			files:  []formFile{{field: "audio", name: "a.wav", body: "x"}},
			fields: map[string]string{"model": "hybrid_v1"},
			want:   http.StatusBadRequest,
		},
		{
			name:  "audio with text-only default model",
			files: []formFile{{field: "audio", name: "a.wav", body: "x"}},
			want:  http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			if tt.flags != nil {
				tt.flags(&deps.settings.flags)
			}
			res := serve(deps.handler(config.Config{}), multipartRequest(t, tt.files, tt.fields))
			if res.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, res.Code, res.Body.String())
			}
		})
	}
}

func TestSubmitBatchIgnoresModelWhenSelectionDisabled(t *testing.T) {
	deps := newTestDeps()
	deps.settings.flags.ModelSelection = false

	req := multipartRequest(t, []formFile{{field: "transcripts", name: "p1.cha", body: "x"}}, map[string]string{"model": "multimodal_v3"})
	res := serve(deps.handler(config.Config{}), req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if got := deps.batch.lastStarted().Model; got != "" {
		t.Fatalf("expected model left to the default, got %q", got)
	}
}

func TestSubmitBatchRejectsOversizedUpload(t *testing.T) {
	req := multipartRequest(t, []formFile{{field: "transcripts", name: "p1.cha", body: string(make([]byte, 4096))}}, nil)
	res := serve(newTestHandler(config.Config{MaxUploadBytes: 512}), req)
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestSubmitBatchRequiresMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := serve(newTestHandler(config.Config{}), req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestBatchSnapshotAndReset(t *testing.T) {
	deps := newTestDeps()
	deps.batch.snapshot = domain.BatchSnapshot{
		BatchID:  "batch-9",
		State:    domain.BatchSettled,
		Progress: domain.Progress{Completed: 1, Total: 1},
		Results:  []domain.Result{{Filename: "p1.cha", PredictionLabel: "Dementia", IsPositive: true}},
	}
	handler := deps.handler(config.Config{})

	res := serve(handler, httptest.NewRequest(http.MethodGet, "/v1/batch", nil))
	var snap domain.BatchSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.BatchID != "batch-9" || len(snap.Results) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	res = serve(handler, httptest.NewRequest(http.MethodGet, "/v1/batch/results/0", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for result detail, got %d", res.Code)
	}

	res = serve(handler, httptest.NewRequest(http.MethodGet, "/v1/batch/results/5", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}

	res = serve(handler, httptest.NewRequest(http.MethodGet, "/v1/batch/results/abc", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad index, got %d", res.Code)
	}

	res = serve(handler, httptest.NewRequest(http.MethodDelete, "/v1/batch", nil))
	if res.Code != http.StatusOK || deps.batch.resets != 1 {
		t.Fatalf("expected reset, got code=%d resets=%d", res.Code, deps.batch.resets)
	}

	res = serve(handler, httptest.NewRequest(http.MethodPost, "/v1/batch", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestExportReport(t *testing.T) {
	deps := newTestDeps()
	handler := deps.handler(config.Config{})

	res := serve(handler, httptest.NewRequest(http.MethodGet, "/v1/batch/export.xlsx", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without results, got %d", res.Code)
	}

	deps.batch.snapshot = domain.BatchSnapshot{
		BatchID: "batch-2",
		State:   domain.BatchSettled,
		Results: []domain.Result{{Filename: "p1.cha", PredictionLabel: "Healthy Control"}},
	}
	res = serve(handler, httptest.NewRequest(http.MethodGet, "/v1/batch/export.xlsx", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.HasPrefix(res.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected a zip container")
	}
}
