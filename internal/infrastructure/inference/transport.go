package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
)

const maxErrorBody = 4096

type multipartForm struct {
	body        []byte
	contentType string
}

func buildPredictForm(req domain.InferenceRequest) (multipartForm, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	files := []struct {
		field string
		file  *domain.InputFile
	}{
		{fieldTranscript, req.Transcript},
		{fieldAudio, req.Audio},
		{fieldSegmentation, req.Segmentation},
	}
	for _, f := range files {
		if f.file == nil {
			continue
		}
		part, err := writer.CreateFormFile(f.field, f.file.Name)
		if err != nil {
			return multipartForm{}, fmt.Errorf("create form file %s: %w", f.field, err)
		}
		if _, err := part.Write(f.file.Data); err != nil {
			return multipartForm{}, fmt.Errorf("write form file %s: %w", f.field, err)
		}
	}
	if err := writer.WriteField(fieldModelName, req.ModelName); err != nil {
		return multipartForm{}, fmt.Errorf("write model name: %w", err)
	}
	if err := writer.Close(); err != nil {
		return multipartForm{}, fmt.Errorf("close multipart writer: %w", err)
	}
	return multipartForm{body: buf.Bytes(), contentType: writer.FormDataContentType()}, nil
}

func (c *Client) get(ctx context.Context, path, operation string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, operation)
}

func (c *Client) postMultipart(ctx context.Context, path string, form multipartForm, operation string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(form.body))
	if err != nil {
		return nil, &domain.InferenceError{Message: "could not build inference request", Err: err}
	}
	req.Header.Set("Content-Type", form.contentType)
	req.Header.Set("Accept", "application/json")
	return c.do(req, operation)
}

func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, formatHTTPError(operation, resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(operation, err)
	}
	return body, nil
}

func (c *Client) transportError(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return &domain.InferenceError{Message: "inference request cancelled", Err: err}
	}
	if isTimeout(err) {
		return &domain.InferenceError{
			Message: fmt.Sprintf("inference request timed out after %s", c.timeout),
			Timeout: true,
			Err:     err,
		}
	}
	return &domain.InferenceError{
		Message: fmt.Sprintf("inference service unreachable: %s", rootCause(err)),
		Err:     fmt.Errorf("inference %s request: %w", operation, err),
	}
}

func formatHTTPError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := detailMessage(body)
	if message == "" {
		message = domain.GenericFailureMessage
	}
	return &domain.InferenceError{
		Message:    message,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("inference %s status: %s", operation, resp.Status),
	}
}

// detailMessage pulls the human readable text out of a structured error body.
// FastAPI style bodies carry either a string detail or a list of
// {"msg": ...} validation entries.
func detailMessage(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	if len(payload.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil && strings.TrimSpace(detail) != "" {
			return strings.TrimSpace(detail)
		}
		var entries []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &entries); err == nil {
			msgs := make([]string, 0, len(entries))
			for _, e := range entries {
				if m := strings.TrimSpace(e.Msg); m != "" {
					msgs = append(msgs, m)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	return firstNonEmpty(payload.Error, payload.Message)
}

func rootCause(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
