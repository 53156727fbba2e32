package httpadapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
	"github.com/kirillkom/adtrack-console/internal/infrastructure/export/xlsx"
)

const (
	fieldTranscripts  = "transcripts"
	fieldAudio        = "audio"
	fieldSegmentation = "segmentation"
	fieldModel        = "model"

	multipartMemory = 32 << 20
)

func (rt *Router) submitBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	flags, err := rt.settings.Get(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	input, err := stageInput(r.MultipartForm, flags)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := rt.checkModel(input); err != nil {
		writeError(w, r, err)
		return
	}

	// The batch outlives the request that started it.
	snapshot, err := rt.batch.Start(context.WithoutCancel(r.Context()), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snapshot)
}

func stageInput(form *multipart.Form, flags domain.FeatureFlags) (domain.StagedInput, error) {
	var input domain.StagedInput

	transcripts := form.File[fieldTranscripts]
	if len(transcripts) > 1 && !flags.MultipleFiles {
		return input, invalidInput("stage files", "multiple transcript files are disabled")
	}
	for _, fh := range transcripts {
		if !domain.HasExtension(fh.Filename, domain.TranscriptExtensions) {
			return input, invalidInput("stage files", fmt.Sprintf("unsupported transcript file %q, expected %s", fh.Filename, strings.Join(domain.TranscriptExtensions, ", ")))
		}
		file, err := readFormFile(fh)
		if err != nil {
			return input, err
		}
		input.Transcripts = append(input.Transcripts, file)
	}

	audio, err := singleFile(form, fieldAudio, domain.AudioExtensions)
	if err != nil {
		return input, err
	}
	input.Audio = audio

	segmentation, err := singleFile(form, fieldSegmentation, domain.SegmentationExtensions)
	if err != nil {
		return input, err
	}
	input.Segmentation = segmentation

	if flags.ModelSelection {
		if values := form.Value[fieldModel]; len(values) > 0 {
			input.Model = strings.TrimSpace(values[0])
		}
	}
	return input, nil
}

// checkModel rejects models the backend does not advertise and audio staged
// for a text-only model. Nothing is checked while the catalog is empty.
func (rt *Router) checkModel(input domain.StagedInput) error {
	if rt.catalog == nil || len(rt.catalog.Models()) == 0 {
		return nil
	}

	name := input.Model
	if name == "" {
		def, ok := rt.catalog.Default()
		if !ok {
			return nil
		}
		name = def.Name
	}
	model, ok := rt.catalog.Lookup(name)
	if !ok {
		return invalidInput("stage files", fmt.Sprintf("unknown model %q", name))
	}
	if input.Audio != nil && !model.SupportsAudio {
		return invalidInput("stage files", fmt.Sprintf("model %q does not accept audio", name))
	}
	return nil
}

func singleFile(form *multipart.Form, field string, exts []string) (*domain.InputFile, error) {
	headers := form.File[field]
	switch {
	case len(headers) == 0:
		return nil, nil
	case len(headers) > 1:
		return nil, invalidInput("stage files", fmt.Sprintf("at most one %s file is allowed", field))
	}

	fh := headers[0]
	if !domain.HasExtension(fh.Filename, exts) {
		return nil, invalidInput("stage files", fmt.Sprintf("unsupported %s file %q, expected %s", field, fh.Filename, strings.Join(exts, ", ")))
	}
	file, err := readFormFile(fh)
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func readFormFile(fh *multipart.FileHeader) (domain.InputFile, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.InputFile{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.InputFile{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return domain.InputFile{Name: fh.Filename, Data: data}, nil
}

func invalidInput(operation, msg string) error {
	return domain.WrapError(domain.ErrInvalidInput, operation, errors.New(msg))
}

func (rt *Router) batchState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, rt.batch.Snapshot())
	case http.MethodDelete:
		rt.batch.Reset()
		writeJSON(w, http.StatusOK, rt.batch.Snapshot())
	default:
		writeMethodNotAllowed(w)
	}
}

func (rt *Router) getResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/v1/batch/results/")
	index, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "result index must be an integer"})
		return
	}

	result, err := rt.batch.Result(index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) exportReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	snapshot := rt.batch.Snapshot()
	if len(snapshot.Results) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no results to export"})
		return
	}
	flags, err := rt.settings.Get(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := xlsx.WriteReport(&buf, snapshot, xlsx.Options{ShowConfidence: flags.ShowConfidence}); err != nil {
		writeError(w, r, err)
		return
	}

	filename := "adtrack-report.xlsx"
	if snapshot.BatchID != "" {
		filename = "adtrack-report-" + snapshot.BatchID + ".xlsx"
	}
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
