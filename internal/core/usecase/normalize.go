package usecase

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
)

const (
	PositiveLabel = "Dementia"
	NegativeLabel = "Healthy Control"
)

// classCodes maps short class codes to the positive class.
var classCodes = map[string]bool{
	"AD": true,
	"1":  true,
	"HC": false,
	"CN": false,
	"0":  false,
}

// modelDisplayNames maps internal backend version ids to display names.
var modelDisplayNames = map[string]string{
	"hybrid_v1":     "DeBERTa Hybrid v1",
	"deberta_v2":    "DeBERTa v2.1 Protocol",
	"v2":            "DeBERTa v2.1 Protocol",
	"multimodal_v3": "Multimodal v3 (Text + Audio)",
	"v3_multimodal": "Multimodal v3 (Text + Audio)",
	"v3":            "Multimodal v3 (Text + Audio)",
}

var positiveVocabulary = []string{"dementia", "alzheimer", "decline", "impair"}

// negators cancel a positive keyword that follows them in a label.
var negators = map[string]bool{
	"no":       true,
	"non":      true,
	"not":      true,
	"without":  true,
	"negative": true,
}

var (
	codeKeys        = []string{"prediction_code", "class_code", "label_code"}
	labelKeys       = []string{"prediction", "label", "predictionLabel", "prediction_label"}
	positiveKeys    = []string{"is_positive", "isPositive", "is_dementia", "isDementia"}
	confidenceKeys  = []string{"confidence"}
	probabilityKeys = []string{"probability", "prob_dementia", "positive_probability"}
	modelKeys       = []string{"modelUsed", "model_used", "model_version", "model"}
	artifactKeys    = []string{"explainability", "explanations"}
)

// Normalize converts one successful backend response into a canonical
// result. It never fails: missing or unusable fields leave the matching
// result field unset.
func Normalize(raw domain.RawPrediction, filename, requestedModel string) domain.Result {
	result := domain.Result{Filename: filename}

	code, hasCode := classCode(raw)
	label := ""
	if hasCode {
		label = codeLabel(code)
	} else {
		label = stringField(raw, labelKeys...)
	}

	switch explicit, ok := boolField(raw, positiveKeys...); {
	case ok:
		result.IsPositive = explicit
	case hasCode:
		result.IsPositive = isPositiveCode(code)
	default:
		result.IsPositive = matchesPositiveVocabulary(label)
	}

	if strings.TrimSpace(label) == "" {
		label = NegativeLabel
		if result.IsPositive {
			label = PositiveLabel
		}
	}
	result.PredictionLabel = label

	if confidence, ok := probabilityField(raw, confidenceKeys...); ok {
		result.Confidence = &confidence
	} else if probability, ok := probabilityField(raw, probabilityKeys...); ok {
		confidence := probability
		if !result.IsPositive {
			confidence = 1 - probability
		}
		result.Confidence = &confidence
	}

	result.ModelUsed = modelDisplayName(stringField(raw, modelKeys...), requestedModel)

	hoistArtifacts(raw, &result)
	return result
}

func classCode(raw domain.RawPrediction) (string, bool) {
	if code := stringField(raw, codeKeys...); code != "" {
		return strings.ToUpper(code), true
	}
	label := strings.ToUpper(stringField(raw, labelKeys...))
	if _, known := classCodes[label]; known {
		return label, true
	}
	return "", false
}

func isPositiveCode(code string) bool {
	return classCodes[strings.ToUpper(strings.TrimSpace(code))]
}

func codeLabel(code string) string {
	if isPositiveCode(code) {
		return PositiveLabel
	}
	return NegativeLabel
}

// matchesPositiveVocabulary reports whether label names the positive class.
// "No dementia detected" and "Non-Dementia" are negative.
func matchesPositiveVocabulary(label string) bool {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	negated := false
	for _, word := range words {
		if negators[word] {
			negated = true
			continue
		}
		if containsPositiveKeyword(word) {
			return !negated
		}
	}
	return false
}

func containsPositiveKeyword(word string) bool {
	for _, keyword := range positiveVocabulary {
		if strings.Contains(word, keyword) {
			return true
		}
	}
	return false
}

func modelDisplayName(explicit, requested string) string {
	explicit = strings.TrimSpace(explicit)
	if explicit == "" {
		return requested
	}
	if display, ok := modelDisplayNames[strings.ToLower(explicit)]; ok {
		return display
	}
	return explicit
}

func hoistArtifacts(raw domain.RawPrediction, result *domain.Result) {
	sources := make([]map[string]any, 0, 2)
	for _, key := range artifactKeys {
		if nested, ok := raw[key].(map[string]any); ok {
			sources = append(sources, nested)
			break
		}
	}
	sources = append(sources, raw)

	for _, src := range sources {
		if result.AttentionMap == nil {
			result.AttentionMap = attentionMap(src["attention_map"])
		}
		if result.LinguisticFeatures == nil {
			result.LinguisticFeatures = numberMap(src["linguistic_features"])
		}
		if result.KeySegments == nil {
			result.KeySegments = keySegments(src["key_segments"])
		}
		if result.ModalityContributions == nil {
			result.ModalityContributions = numberMap(src["modality_contributions"])
		}
		if result.ProbabilityBreakdown == nil {
			result.ProbabilityBreakdown = numberMap(src["probabilities"])
		}
		if result.SpectrogramImage == "" {
			result.SpectrogramImage = stringField(src, "spectrogram", "spectrogram_base64")
		}
	}
	result.GeneratedTranscript = stringField(raw, "generated_transcript", "generatedTranscript")
}

func attentionMap(value any) []domain.AttentionSpan {
	items, ok := value.([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	spans := make([]domain.AttentionSpan, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		score, _ := numberField(obj, "attention_score", "score")
		spans = append(spans, domain.AttentionSpan{
			Text:  stringField(obj, "sentence", "text"),
			Score: score,
		})
	}
	if len(spans) == 0 {
		return nil
	}
	return spans
}

func keySegments(value any) []domain.KeySegment {
	items, ok := value.([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	segments := make([]domain.KeySegment, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		importance, _ := numberField(obj, "importance", "score")
		segments = append(segments, domain.KeySegment{
			Text:       stringField(obj, "text", "sentence"),
			Importance: importance,
		})
	}
	if len(segments) == 0 {
		return nil
	}
	return segments
}

func numberMap(value any) map[string]float64 {
	obj, ok := value.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	out := make(map[string]float64, len(obj))
	for key, v := range obj {
		if n, ok := toFloat(v); ok {
			out[key] = n
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func boolField(obj map[string]any, keys ...string) (bool, bool) {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case bool:
			return v, true
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return parsed, true
			}
		}
	}
	return false, false
}

func numberField(obj map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if n, ok := toFloat(obj[key]); ok {
			return n, true
		}
	}
	return 0, false
}

// probabilityField returns the first alias holding a finite number in [0,1].
func probabilityField(obj map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		n, ok := toFloat(obj[key])
		if ok && n >= 0 && n <= 1 {
			return n, true
		}
	}
	return 0, false
}

func toFloat(value any) (float64, bool) {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
