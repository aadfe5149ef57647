package config

// SecretStringValue replaces actual secret values in any serialized output.
const SecretStringValue = "<secret>"

// SecretString holds credentials, presently the oracle API key. Whenever the
// configuration is serialized back (dumpconfig, debug report) the value is
// redacted.
type SecretString string

// MarshalJSON marshals SecretString to JSON hiding the actual value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return []byte("\"" + SecretStringValue + "\""), nil
}

// MarshalYAML marshals SecretString to YAML hiding the actual value.
func (s SecretString) MarshalYAML() (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return SecretStringValue, nil
}
