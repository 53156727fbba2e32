package domain

const (
	FlagMultipleFiles  = "featureMultipleFiles"
	FlagModelSelection = "featureModelSelection"
	FlagShowConfidence = "featureShowConfidence"
	FlagShowAccuracy   = "featureShowAccuracy"
	FlagAccuracyValue  = "accuracyValue"
)

// FeatureFlags toggles optional presentation affordances.
type FeatureFlags struct {
	MultipleFiles  bool   `json:"featureMultipleFiles" yaml:"featureMultipleFiles"`
	ModelSelection bool   `json:"featureModelSelection" yaml:"featureModelSelection"`
	ShowConfidence bool   `json:"featureShowConfidence" yaml:"featureShowConfidence"`
	ShowAccuracy   bool   `json:"featureShowAccuracy" yaml:"featureShowAccuracy"`
	AccuracyValue  string `json:"accuracyValue" yaml:"accuracyValue"`
}

func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{
		MultipleFiles:  true,
		ModelSelection: true,
		ShowConfidence: true,
		ShowAccuracy:   true,
		AccuracyValue:  "81.1%",
	}
}
