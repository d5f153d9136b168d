package core

// TextProcessing holds the enhancement prompt configuration.
type TextProcessing struct {
	Prompt       string `json:"prompt"`
	Instructions string `json:"instructions"`
}

// VoiceParams parameterizes the synthesis step.
type VoiceParams struct {
	VoiceID        string  `json:"voiceId"`
	Speed          float64 `json:"speed"`
	Pitch          float64 `json:"pitch"`
	ResponseFormat string  `json:"responseFormat"`
}

// Settings is the user configuration persisted under a single key.
type Settings struct {
	TextProcessing TextProcessing `json:"textProcessing"`
	Voice          VoiceParams    `json:"voice"`
}

// VoiceProfile is a named synthesis identity, either a base voice or a blend.
type VoiceProfile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Gender       string   `json:"gender"`
	Accent       string   `json:"accent"`
	IsBase       bool     `json:"isBase"`
	IsPredefined bool     `json:"isPredefined,omitempty"`
	Components   []string `json:"components,omitempty"`
	Description  string   `json:"description,omitempty"`
}
