package common

import "gopkg.in/yaml.v3"

// YAML support for enum values used in configuration and project manifests.
// Values travel as their lower-case names.

func (f PageFormat) MarshalYAML() (any, error) { return f.String(), nil }

func (f *PageFormat) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	v, err := ParsePageFormat(name)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (s StylePreset) MarshalYAML() (any, error) { return s.String(), nil }

func (s *StylePreset) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	// unknown preset names are tolerated, same as ParseStylePreset
	*s = ParseStylePreset(name)
	return nil
}

func (b BackendKind) MarshalYAML() (any, error) { return b.String(), nil }

func (b *BackendKind) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	v, err := ParseBackendKind(name)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (s FragmentStatus) MarshalYAML() (any, error) { return s.String(), nil }

func (s *FragmentStatus) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	v, err := ParseFragmentStatus(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
