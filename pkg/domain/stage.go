package domain

// StageID identifies a stage task. IDs are short fixed strings.
type StageID string

const (
	StageOpening          StageID = "opening"
	StageConfirmation     StageID = "confirmation"
	StageScheduleCallback StageID = "schedule_callback"
	StageDiagnosis        StageID = "diagnosis"
	StageBiopsy           StageID = "biopsy"
	StageTreatment        StageID = "treatment"
	StageTimeline         StageID = "timeline"
	StageGeography        StageID = "geography"
	StagePositioning      StageID = "positioning"
	StageOffer            StageID = "offer"
	StageClosing          StageID = "closing"
)

// StageStatus is the lifecycle of a stage task.
type StageStatus string

const (
	StageCreated   StageStatus = "created"
	StageActive    StageStatus = "active"
	StageCompleted StageStatus = "completed"
)

// OpeningResult records whether the callee has time to talk.
type OpeningResult struct {
	GoodTime bool `json:"good_time" mapstructure:"good_time"`
}

// ScheduleCallbackResult records when the callee prefers to be called back.
type ScheduleCallbackResult struct {
	CallbackPreference string `json:"callback_preference" mapstructure:"callback_preference"`
	Summary            string `json:"summary,omitempty" mapstructure:"summary"`
}

// ConfirmationResult records whether the callee is aware of the test results.
type ConfirmationResult struct {
	Aware   bool   `json:"aware" mapstructure:"aware"`
	Summary string `json:"summary,omitempty" mapstructure:"summary"`
}

// DiagnosisResult captures cancer type and staging knowledge.
type DiagnosisResult struct {
	CancerType      string `json:"cancer_type,omitempty" mapstructure:"cancer_type"`
	BiopsyDone      bool   `json:"biopsy_done" mapstructure:"biopsy_done"`
	StageKnown      bool   `json:"stage_known" mapstructure:"stage_known"`
	MetastasisKnown bool   `json:"metastasis_known" mapstructure:"metastasis_known"`
	Summary         string `json:"summary,omitempty" mapstructure:"summary"`
}

// TreatmentResult captures the current treatment status. Started drives routing.
type TreatmentResult struct {
	Started        bool   `json:"started" mapstructure:"started"`
	Hospital       string `json:"hospital,omitempty" mapstructure:"hospital"`
	SurgeryPlanned bool   `json:"surgery_planned" mapstructure:"surgery_planned"`
	ChemoAdvised   bool   `json:"chemo_advised" mapstructure:"chemo_advised"`
	Summary        string `json:"summary,omitempty" mapstructure:"summary"`
}

// TimelineResult captures when treatment is expected to start.
type TimelineResult struct {
	Timeline string `json:"timeline" mapstructure:"timeline"`
	Summary  string `json:"summary,omitempty" mapstructure:"summary"`
}

// GeographyResult captures where the callee lives and whether they can travel.
type GeographyResult struct {
	WhereFrom             string `json:"where_from" mapstructure:"where_from"`
	WillingToTravelAnswer string `json:"willing_to_travel_answer" mapstructure:"willing_to_travel_answer"`
}

// ClosingResult marks the end of the conversation.
type ClosingResult struct {
	Done bool `json:"done" mapstructure:"done"`
}

// TurnResult is recorded by the flow machine when a waypoint is answered.
type TurnResult struct {
	Utterance string `json:"utterance" mapstructure:"utterance"`
	Branch    string `json:"branch,omitempty" mapstructure:"branch"`
}

// resultFactories maps a stage to the prototype of its typed result.
var resultFactories = map[StageID]func() any{
	StageOpening:          func() any { return &OpeningResult{} },
	StageScheduleCallback: func() any { return &ScheduleCallbackResult{} },
	StageConfirmation:     func() any { return &ConfirmationResult{} },
	StageDiagnosis:        func() any { return &DiagnosisResult{} },
	StageTreatment:        func() any { return &TreatmentResult{} },
	StageTimeline:         func() any { return &TimelineResult{} },
	StageGeography:        func() any { return &GeographyResult{} },
	StageClosing:          func() any { return &ClosingResult{} },
}

// NewResult returns a pointer to a zero typed result for the stage,
// or a generic map for stages without a dedicated type.
func NewResult(id StageID) any {
	if f, ok := resultFactories[id]; ok {
		return f()
	}
	return &map[string]any{}
}
