package domain

// RawPrediction is a successful inference response exactly as the backend
// sent it. Its shape varies by model version.
type RawPrediction map[string]any

type ModelDescriptor struct {
	Name          string `json:"name"`
	SupportsAudio bool   `json:"supports_audio"`
}

type InputFile struct {
	Name string `json:"name"`
	Data []byte `json:"-"`
}

// InferenceRequest is one request unit as sent to the backend. At least one
// of Transcript or Audio is set.
type InferenceRequest struct {
	Transcript   *InputFile
	Audio        *InputFile
	Segmentation *InputFile
	ModelName    string
}

// SourceName is the display name of the item that produced this request.
func (r InferenceRequest) SourceName() string {
	if r.Transcript != nil {
		return r.Transcript.Name
	}
	if r.Audio != nil {
		return r.Audio.Name
	}
	return ""
}

type AttentionSpan struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type KeySegment struct {
	Text       string  `json:"text"`
	Importance float64 `json:"importance"`
}

// Result is the canonical shape every backend response is normalized into.
// A result is either a success (prediction fields set, Failed false) or a
// failure (Failed true, FailureMessage set, no prediction data).
type Result struct {
	Filename        string   `json:"filename"`
	PredictionLabel string   `json:"prediction_label,omitempty"`
	IsPositive      bool     `json:"is_positive"`
	Confidence      *float64 `json:"confidence,omitempty"`
	ModelUsed       string   `json:"model_used,omitempty"`

	AttentionMap          []AttentionSpan    `json:"attention_map,omitempty"`
	LinguisticFeatures    map[string]float64 `json:"linguistic_features,omitempty"`
	KeySegments           []KeySegment       `json:"key_segments,omitempty"`
	ModalityContributions map[string]float64 `json:"modality_contributions,omitempty"`
	ProbabilityBreakdown  map[string]float64 `json:"probability_breakdown,omitempty"`
	GeneratedTranscript   string             `json:"generated_transcript,omitempty"`
	SpectrogramImage      string             `json:"spectrogram_image,omitempty"`

	Failed         bool   `json:"failed"`
	FailureMessage string `json:"failure_message,omitempty"`
}

func FailedResult(filename, message string) Result {
	if message == "" {
		message = GenericFailureMessage
	}
	return Result{
		Filename:       filename,
		Failed:         true,
		FailureMessage: message,
	}
}
