package synth

import (
	"fmt"
	"strconv"
	"strings"
)

// VoicePart is one weighted component of a voice selector.
type VoicePart struct {
	Name   string
	Weight float64 // Percentage; parts of a voice always sum to 100.
}

// Voice is a single voice or a weighted blend of exactly two voices.
type Voice struct {
	Parts []VoicePart
}

// IsBlend reports whether the voice mixes two profiles.
func (v Voice) IsBlend() bool { return len(v.Parts) == 2 }

func (v Voice) String() string {
	if len(v.Parts) == 1 {
		return v.Parts[0].Name
	}
	parts := make([]string, len(v.Parts))
	for i, p := range v.Parts {
		parts[i] = fmt.Sprintf("%s:%g", p.Name, p.Weight)
	}
	return strings.Join(parts, ",")
}

// ParseVoice parses a voice selector. A selector is either a single
// identifier, or two identifiers joined by a comma, each optionally
// suffixed with ":weight". Weights are normalized to sum to 100; two
// voices with no weights default to 50 each. More than two voices is a
// configuration error.
func ParseVoice(s string) (Voice, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Voice{}, fmt.Errorf("empty voice selector")
	}

	if !strings.Contains(s, ",") {
		name, weight, err := parseVoicePart(s)
		if err != nil {
			return Voice{}, err
		}
		_ = weight // A lone weight is meaningless for a single voice.
		return Voice{Parts: []VoicePart{{Name: name, Weight: 100}}}, nil
	}

	var parts []VoicePart
	for _, raw := range strings.Split(s, ",") {
		name, weight, err := parseVoicePart(raw)
		if err != nil {
			return Voice{}, err
		}
		if weight <= 0 {
			weight = 50 // Default when no weight given.
		}
		parts = append(parts, VoicePart{Name: name, Weight: weight})
	}

	if len(parts) != 2 {
		return Voice{}, fmt.Errorf("voice blending needs exactly two comma separated voices, got %d", len(parts))
	}

	total := parts[0].Weight + parts[1].Weight
	if total != 100 {
		for i := range parts {
			parts[i].Weight = parts[i].Weight * (100 / total)
		}
	}

	return Voice{Parts: parts}, nil
}

func parseVoicePart(raw string) (name string, weight float64, err error) {
	raw = strings.TrimSpace(raw)
	name, weightStr, found := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, fmt.Errorf("empty voice name in selector %q", raw)
	}
	if !found {
		return name, 0, nil
	}
	weight, err = strconv.ParseFloat(strings.TrimSpace(weightStr), 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid voice weight in %q: %w", raw, err)
	}
	if weight <= 0 {
		return "", 0, fmt.Errorf("voice weight must be positive in %q", raw)
	}
	return name, weight, nil
}
