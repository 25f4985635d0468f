package core

// Stage is a state of the orchestration state machine.
type Stage int

const (
	StageBaseAnalysis Stage = iota + 1
	StageSpecializedRefinement
	StageFinalVerification
	StageDone
)

// String returns the stage name used in logs and the audit trail.
func (s Stage) String() string {
	switch s {
	case StageBaseAnalysis:
		return "stage1_base_analysis"
	case StageSpecializedRefinement:
		return "stage2_specialized_refinement"
	case StageFinalVerification:
		return "stage3_final_verification"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a stage name produced by MarshalText.
func (s *Stage) UnmarshalText(b []byte) error {
	switch string(b) {
	case "stage1_base_analysis":
		*s = StageBaseAnalysis
	case "stage2_specialized_refinement":
		*s = StageSpecializedRefinement
	case "stage3_final_verification":
		*s = StageFinalVerification
	case "done":
		*s = StageDone
	default:
		*s = 0
	}
	return nil
}

// Next returns the stage that follows s when continuation is required.
func (s Stage) Next() Stage {
	if s >= StageFinalVerification {
		return StageDone
	}
	return s + 1
}
