package domain

import (
	"strings"
	"time"
)

type BatchState string

const (
	BatchIdle       BatchState = "idle"
	BatchSubmitting BatchState = "submitting"
	BatchSettled    BatchState = "settled"
)

// StagedInput is the set of files a user picked for one submission.
type StagedInput struct {
	Transcripts  []InputFile
	Audio        *InputFile
	Segmentation *InputFile
	Model        string
}

// RequestUnits expands the staged files into the ordered list of backend
// calls a batch issues. It returns nil when no valid combination is staged.
func (in StagedInput) RequestUnits() []InferenceRequest {
	if len(in.Transcripts) == 0 {
		if in.Audio == nil {
			return nil
		}
		return []InferenceRequest{{
			Audio:        in.Audio,
			Segmentation: in.Segmentation,
			ModelName:    in.Model,
		}}
	}

	units := make([]InferenceRequest, 0, len(in.Transcripts))
	for i := range in.Transcripts {
		units = append(units, InferenceRequest{
			Transcript:   &in.Transcripts[i],
			Audio:        in.Audio,
			Segmentation: in.Segmentation,
			ModelName:    in.Model,
		})
	}
	return units
}

type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type BatchSummary struct {
	Total    int `json:"total"`
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Failed   int `json:"failed"`
}

func Summarize(results []Result) BatchSummary {
	summary := BatchSummary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Failed:
			summary.Failed++
		case r.IsPositive:
			summary.Positive++
		default:
			summary.Negative++
		}
	}
	return summary
}

// BatchSnapshot is the read model handed to presentation.
type BatchSnapshot struct {
	BatchID    string            `json:"batch_id,omitempty"`
	Model      string            `json:"model,omitempty"`
	State      BatchState        `json:"state"`
	Loading    bool              `json:"loading"`
	Progress   Progress          `json:"progress"`
	Results    []Result          `json:"results"`
	Summary    BatchSummary      `json:"summary"`
	Models     []ModelDescriptor `json:"models,omitempty"`
	Superseded bool              `json:"superseded,omitempty"`
}

// BatchSettledEvent is published once per batch that settles while still
// current.
type BatchSettledEvent struct {
	BatchID    string       `json:"batch_id"`
	Model      string       `json:"model"`
	Summary    BatchSummary `json:"summary"`
	Filenames  []string     `json:"filenames"`
	DurationMS float64      `json:"duration_ms"`
	SettledAt  time.Time    `json:"settled_at"`
}

var (
	TranscriptExtensions   = []string{".cha"}
	AudioExtensions        = []string{".wav", ".mp3", ".m4a", ".flac", ".ogg"}
	SegmentationExtensions = []string{".csv"}
)

// HasExtension reports whether name ends with one of exts, ignoring case.
func HasExtension(name string, exts []string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
