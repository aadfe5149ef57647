// Shared enumerations. They are needed both by configuration and by pipeline
// packages and keeping them separate avoids an import cycle between config and
// the stages.
package common

import "fmt"

// Specification of requested page format for the typeset output.
type PageFormat int

const (
	PageFormatA4 PageFormat = iota
	PageFormatA5
	PageFormatLetter
	PageFormatRoyal
)

var pageFormatNames = map[PageFormat]string{
	PageFormatA4:     "a4",
	PageFormatA5:     "a5",
	PageFormatLetter: "letter",
	PageFormatRoyal:  "royal",
}

func (f PageFormat) String() string {
	if n, ok := pageFormatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("PageFormat(%d)", int(f))
}

func ParsePageFormat(name string) (PageFormat, error) {
	for f, n := range pageFormatNames {
		if n == name {
			return f, nil
		}
	}
	return PageFormatA4, fmt.Errorf("%s is not a valid PageFormat", name)
}

func PageFormatNames() []string {
	return []string{"a4", "a5", "letter", "royal"}
}

// Specification of named visual preset.
type StylePreset int

const (
	StylePresetClassic StylePreset = iota
	StylePresetModern
	StylePresetElegant
	StylePresetAcademic
	StylePresetVibrant
	StylePresetCustom
)

var stylePresetNames = map[StylePreset]string{
	StylePresetClassic:  "classic",
	StylePresetModern:   "modern",
	StylePresetElegant:  "elegant",
	StylePresetAcademic: "academic",
	StylePresetVibrant:  "vibrant",
	StylePresetCustom:   "custom",
}

func (s StylePreset) String() string {
	if n, ok := stylePresetNames[s]; ok {
		return n
	}
	return fmt.Sprintf("StylePreset(%d)", int(s))
}

// ParseStylePreset never fails - unknown names fall back to classic so a bad
// value coming from stored project settings cannot stop a build.
func ParseStylePreset(name string) StylePreset {
	for s, n := range stylePresetNames {
		if n == name {
			return s
		}
	}
	return StylePresetClassic
}

func StylePresetNames() []string {
	return []string{"classic", "modern", "elegant", "academic", "vibrant", "custom"}
}

// Lifecycle of a single chapter fragment.
type FragmentStatus int

const (
	FragmentStatusPending FragmentStatus = iota
	FragmentStatusGenerated
	FragmentStatusReady
	FragmentStatusError
)

var fragmentStatusNames = map[FragmentStatus]string{
	FragmentStatusPending:   "pending",
	FragmentStatusGenerated: "generated",
	FragmentStatusReady:     "ready",
	FragmentStatusError:     "error",
}

func (s FragmentStatus) String() string {
	if n, ok := fragmentStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("FragmentStatus(%d)", int(s))
}

func ParseFragmentStatus(name string) (FragmentStatus, error) {
	for s, n := range fragmentStatusNames {
		if n == name {
			return s, nil
		}
	}
	return FragmentStatusPending, fmt.Errorf("%s is not a valid FragmentStatus", name)
}

// Usable reports whether a fragment in this state may be spliced into the
// assembled document.
func (s FragmentStatus) Usable() bool {
	return s == FragmentStatusGenerated || s == FragmentStatusReady
}

// Outcome of a single compiler invocation.
type CompileOutcome int

const (
	CompileOutcomeSuccess CompileOutcome = iota
	CompileOutcomeRecoverable
	CompileOutcomeFatal
)

func (o CompileOutcome) String() string {
	switch o {
	case CompileOutcomeSuccess:
		return "success"
	case CompileOutcomeRecoverable:
		return "recoverable"
	case CompileOutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("CompileOutcome(%d)", int(o))
	}
}

// Specification of artifact storage backend.
type BackendKind int

const (
	BackendKindLocal BackendKind = iota
	BackendKindS3
)

var backendKindNames = map[BackendKind]string{
	BackendKindLocal: "local",
	BackendKindS3:    "s3",
}

func (b BackendKind) String() string {
	if n, ok := backendKindNames[b]; ok {
		return n
	}
	return fmt.Sprintf("BackendKind(%d)", int(b))
}

func ParseBackendKind(name string) (BackendKind, error) {
	for b, n := range backendKindNames {
		if n == name {
			return b, nil
		}
	}
	return BackendKindLocal, fmt.Errorf("%s is not a valid BackendKind", name)
}

// Specification of produced output type.
type OutputFmt int

const (
	OutputFmtPDF OutputFmt = iota
	OutputFmtEpub
	OutputFmtSource
)

func (o OutputFmt) String() string {
	switch o {
	case OutputFmtPDF:
		return "pdf"
	case OutputFmtEpub:
		return "epub"
	case OutputFmtSource:
		return "source"
	default:
		return fmt.Sprintf("OutputFmt(%d)", int(o))
	}
}

func (o OutputFmt) Ext() string {
	switch o {
	case OutputFmtPDF:
		return ".pdf"
	case OutputFmtEpub:
		return ".epub"
	case OutputFmtSource:
		return ".tex"
	default:
		// this should never happen
		panic("unsupported format requested")
	}
}
