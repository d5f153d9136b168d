package voices

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/book-expert/regen-service/internal/core"
)

// Accents.
const (
	AccentAmerican      = "American"
	AccentBritish       = "British"
	AccentOther         = "Other"
	AccentCombined      = "Combined"
	AccentInternational = "International"
	AccentProfessional  = "Professional"
)

// Genders.
const (
	GenderFemale  = "Female"
	GenderMale    = "Male"
	GenderUnknown = "Unknown"
	GenderMixed   = "Mixed"
)

const (
	tagSeparator       = "_"
	accentAmericanCode = 'a'
	accentBritishCode  = 'b'
	genderFemaleCode   = 'f'
	genderMaleCode     = 'm'
)

var fallbackBaseVoices = []string{
	"af_heart", "af_sky", "af_river",
	"am_rock", "am_bolt", "am_marble",
	"bf_emma", "bf_isabella",
	"bm_george", "bm_lewis",
}

var predefinedComposites = []core.VoiceProfile{
	predefined("Harmony", GenderFemale, AccentAmerican, "Warm and clear female voice",
		"af_heart", "af_sky"),
	predefined("Serenity", GenderFemale, AccentAmerican, "Gentle and flowing female voice",
		"af_heart", "af_river"),
	predefined("Thunder", GenderMale, AccentAmerican, "Strong and confident male voice",
		"am_adam", "am_echo"),
	predefined("Royal", GenderFemale, AccentBritish, "Elegant and sophisticated British female",
		"bf_emma", "bf_lily"),
	predefined("Gentleman", GenderMale, AccentBritish, "Distinguished British gentleman",
		"bm_george", "bm_lewis"),
	predefined("Dynamic Duo", GenderMixed, AccentAmerican, "Balanced mix of warm female and strong male",
		"af_heart", "am_adam"),
	predefined("Chorus", GenderFemale, AccentAmerican, "Rich harmonious female voice",
		"af_heart", "af_river", "af_sky"),
	predefined("Commander", GenderMale, AccentAmerican, "Deep authoritative male voice",
		"am_adam", "am_echo", "am_michael"),
	predefined("Diplomat", GenderMixed, AccentInternational, "Refined international blend",
		"bf_emma", "af_heart", "bm_george"),
	predefined("Executive", GenderMixed, AccentProfessional, "Professional and authoritative",
		"af_bella", "am_michael", "bf_emma"),
}

func predefined(name, gender, accent, description string, components ...string) core.VoiceProfile {
	return core.VoiceProfile{
		ID:           CompositeID(components),
		Name:         name,
		Gender:       gender,
		Accent:       accent,
		IsBase:       false,
		IsPredefined: true,
		Components:   components,
		Description:  description,
	}
}

// CompositeID derives the composite voice id from base voice ids in the order given.
func CompositeID(baseIDs []string) string {
	return strings.Join(baseIDs, CompositeSeparator)
}

// Predefined returns a copy of the code-defined composite voices.
func Predefined() []core.VoiceProfile {
	return cloneProfiles(predefinedComposites)
}

// FallbackBaseVoices returns the base voice tags used when the synthesis service
// cannot list its voices.
func FallbackBaseVoices() []string {
	return append([]string(nil), fallbackBaseVoices...)
}

// DecodeTag parses a base voice tag such as "bf_emma". The first character of the
// first segment selects the accent, the second the gender, and the capitalized
// second segment is the display name.
func DecodeTag(tag string) core.VoiceProfile {
	segments := strings.SplitN(tag, tagSeparator, 2)
	code := segments[0]

	profile := core.VoiceProfile{
		ID:     tag,
		Name:   tag,
		Gender: GenderUnknown,
		Accent: AccentOther,
		IsBase: true,
	}

	if len(code) > 0 {
		switch code[0] {
		case accentAmericanCode:
			profile.Accent = AccentAmerican
		case accentBritishCode:
			profile.Accent = AccentBritish
		}
	}

	if len(code) > 1 {
		switch code[1] {
		case genderFemaleCode:
			profile.Gender = GenderFemale
		case genderMaleCode:
			profile.Gender = GenderMale
		}
	}

	if len(segments) == 2 && segments[1] != "" {
		profile.Name = capitalize(segments[1])
	}

	return profile
}

func capitalize(word string) string {
	first, size := utf8.DecodeRuneInString(word)

	return string(unicode.ToUpper(first)) + word[size:]
}

func cloneProfiles(profiles []core.VoiceProfile) []core.VoiceProfile {
	out := make([]core.VoiceProfile, len(profiles))

	for i, profile := range profiles {
		profile.Components = append([]string(nil), profile.Components...)
		out[i] = profile
	}

	return out
}
