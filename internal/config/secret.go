package config

const redacted = "[REDACTED]"

// Secret holds a credential that must never appear in logs or dumps.
// Every textual representation renders as a placeholder; the raw value
// is only reachable through Reveal.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	if s == "" {
		return `""`
	}
	return `"` + redacted + `"`
}

func (s Secret) MarshalYAML() (interface{}, error) {
	if s == "" {
		return "", nil
	}
	return redacted, nil
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Reveal returns the raw value for handoff to the session layer.
func (s Secret) Reveal() string {
	return string(s)
}
