package api

// Progress states shared by search, score and produce results.
const (
	ProgressPending   = "PENDING"
	ProgressRunning   = "RUNNING"
	ProgressCompleted = "COMPLETED"
	ProgressErrored   = "ERRORED"
)

// Progress reports how far a search or request has come. Times are
// RFC 3339.
type Progress struct {
	State  string `json:"state"`
	Status string `json:"status,omitempty"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
}

type HelloRequest struct{}

type HelloResponse struct {
	UserAgent           string   `json:"user_agent"`
	Version             string   `json:"version"`
	AllowedValueTypes   []string `json:"allowed_value_types"`
	SupportedExtensions []string `json:"supported_extensions,omitempty"`
}

// PerformanceMetric names a metric and its parameters.
type PerformanceMetric struct {
	Metric   string `json:"metric" validate:"required"`
	K        int    `json:"k,omitempty" validate:"gte=0"`
	PosLabel string `json:"pos_label,omitempty"`
}

type ProblemTarget struct {
	TargetIndex int    `json:"target_index" validate:"gte=0"`
	ResourceID  string `json:"resource_id,omitempty"`
	ColumnIndex int    `json:"column_index" validate:"gte=0"`
	ColumnName  string `json:"column_name" validate:"required"`
}

type ProblemInput struct {
	DatasetID string          `json:"dataset_id"`
	Targets   []ProblemTarget `json:"targets" validate:"required,min=1,dive"`
}

type Problem struct {
	ID                 string              `json:"id" validate:"required"`
	Version            string              `json:"version,omitempty"`
	Name               string              `json:"name,omitempty"`
	TaskType           string              `json:"task_type" validate:"required"`
	TaskSubtype        string              `json:"task_subtype,omitempty"`
	PerformanceMetrics []PerformanceMetric `json:"performance_metrics,omitempty" validate:"dive"`
}

type ProblemDescription struct {
	Problem Problem        `json:"problem"`
	Inputs  []ProblemInput `json:"inputs" validate:"required,min=1,dive"`
}

// Primitive describes a primitive implementation.
type Primitive struct {
	ID         string `json:"id" validate:"required"`
	Version    string `json:"version"`
	PythonPath string `json:"python_path"`
	Name       string `json:"name"`
	Digest     string `json:"digest,omitempty"`
}

type PipelineSource struct {
	Name      string   `json:"name,omitempty"`
	Contact   string   `json:"contact,omitempty"`
	Pipelines []string `json:"pipelines,omitempty"`
}

type PipelineDescriptionUser struct {
	ID        string `json:"id"`
	Reason    string `json:"reason,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

type PipelineDescriptionInput struct {
	Name string `json:"name,omitempty"`
}

type PipelineDescriptionOutput struct {
	Name string `json:"name,omitempty"`
	Data string `json:"data" validate:"required"`
}

// ContainerArgument and DataArgument reference data as "inputs.N" or
// "steps.N.slot".
type ContainerArgument struct {
	Data string `json:"data" validate:"required"`
}

type DataArgument struct {
	Data string `json:"data" validate:"required"`
}

// PrimitiveArgument references the fitted instance of step Data.
type PrimitiveArgument struct {
	Data int `json:"data" validate:"gte=0"`
}

type ValueArgument struct {
	Data Value `json:"data"`
}

// PrimitiveStepArgument is a step input: exactly one field is set.
type PrimitiveStepArgument struct {
	Container *ContainerArgument `json:"container,omitempty"`
	Data      *DataArgument      `json:"data,omitempty"`
	Primitive *PrimitiveArgument `json:"primitive,omitempty"`
}

// PrimitiveStepHyperparameter is a hyperparameter binding: exactly one
// field is set.
type PrimitiveStepHyperparameter struct {
	Container *ContainerArgument `json:"container,omitempty"`
	Data      *DataArgument      `json:"data,omitempty"`
	Primitive *PrimitiveArgument `json:"primitive,omitempty"`
	Value     *ValueArgument     `json:"value,omitempty"`
}

type StepOutput struct {
	ID string `json:"id" validate:"required"`
}

type PrimitivePipelineDescriptionStep struct {
	Primitive   Primitive                              `json:"primitive"`
	Arguments   map[string]PrimitiveStepArgument       `json:"arguments,omitempty"`
	Outputs     []StepOutput                           `json:"outputs,omitempty" validate:"dive"`
	Hyperparams map[string]PrimitiveStepHyperparameter `json:"hyperparams,omitempty"`
	Users       []PipelineDescriptionUser              `json:"users,omitempty"`
}

type SubpipelinePipelineDescriptionStep struct {
	Pipeline *PipelineDescription `json:"pipeline,omitempty"`
	Inputs   []string             `json:"inputs,omitempty"`
	Outputs  []string             `json:"outputs,omitempty"`
}

type PlaceholderPipelineDescriptionStep struct {
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}

// PipelineDescriptionStep is a step: exactly one field is set.
type PipelineDescriptionStep struct {
	Primitive   *PrimitivePipelineDescriptionStep   `json:"primitive,omitempty"`
	Pipeline    *SubpipelinePipelineDescriptionStep `json:"pipeline,omitempty"`
	Placeholder *PlaceholderPipelineDescriptionStep `json:"placeholder,omitempty"`
}

type PipelineDescription struct {
	ID          string                      `json:"id"`
	Source      *PipelineSource             `json:"source,omitempty"`
	Created     string                      `json:"created,omitempty"`
	Context     string                      `json:"context,omitempty"`
	Name        string                      `json:"name,omitempty"`
	Description string                      `json:"description,omitempty"`
	Users       []PipelineDescriptionUser   `json:"users,omitempty"`
	Inputs      []PipelineDescriptionInput  `json:"inputs,omitempty"`
	Outputs     []PipelineDescriptionOutput `json:"outputs,omitempty" validate:"dive"`
	Steps       []PipelineDescriptionStep   `json:"steps,omitempty"`
}

type SearchSolutionsRequest struct {
	UserAgent         string               `json:"user_agent,omitempty"`
	Version           string               `json:"version,omitempty"`
	TimeBound         float64              `json:"time_bound,omitempty" validate:"gte=0"` // minutes; zero uses the server default
	Priority          float64              `json:"priority,omitempty"`
	AllowedValueTypes []string             `json:"allowed_value_types,omitempty"`
	Problem           *ProblemDescription  `json:"problem" validate:"required"`
	Template          *PipelineDescription `json:"template,omitempty"`
	Inputs            []Value              `json:"inputs" validate:"required,min=1"`
}

type SearchSolutionsResponse struct {
	SearchID string `json:"search_id"`
}

type EndSearchSolutionsRequest struct {
	SearchID string `json:"search_id" validate:"required"`
}

type EndSearchSolutionsResponse struct{}

type StopSearchSolutionsRequest struct {
	SearchID string `json:"search_id" validate:"required"`
}

type StopSearchSolutionsResponse struct{}

type GetSearchSolutionsResultsRequest struct {
	SearchID string `json:"search_id" validate:"required"`
}

type ScoringConfiguration struct {
	Method         string  `json:"method"`
	Folds          int     `json:"folds,omitempty"`
	TrainTestRatio float64 `json:"train_test_ratio,omitempty"`
	Shuffle        bool    `json:"shuffle,omitempty"`
	RandomSeed     uint64  `json:"random_seed,omitempty"`
	Stratified     bool    `json:"stratified,omitempty"`
}

type Score struct {
	Metric PerformanceMetric `json:"metric"`
	Fold   int               `json:"fold"`
	Value  Value             `json:"value"`
}

type SolutionSearchScore struct {
	ScoringConfiguration ScoringConfiguration `json:"scoring_configuration"`
	Scores               []Score              `json:"scores"`
}

type GetSearchSolutionsResultsResponse struct {
	Progress      Progress              `json:"progress"`
	DoneTicks     float64               `json:"done_ticks"`
	AllTicks      float64               `json:"all_ticks"`
	SolutionID    string                `json:"solution_id,omitempty"`
	InternalScore float64               `json:"internal_score"`
	Scores        []SolutionSearchScore `json:"scores,omitempty"`
}

type DescribeSolutionRequest struct {
	SolutionID string `json:"solution_id" validate:"required"`
}

// PrimitiveStepDescription lists the effective literal hyperparameters of a
// step.
type PrimitiveStepDescription struct {
	Hyperparams map[string]Value `json:"hyperparams"`
}

type StepDescription struct {
	Primitive *PrimitiveStepDescription `json:"primitive,omitempty"`
}

type DescribeSolutionResponse struct {
	Pipeline *PipelineDescription `json:"pipeline"`
	Steps    []StepDescription    `json:"steps"`
}

// ScoreSolutionRequest scores a solution. Without inputs the search
// holdout is scored.
type ScoreSolutionRequest struct {
	SolutionID         string                    `json:"solution_id" validate:"required"`
	Inputs             []Value                   `json:"inputs,omitempty"`
	PerformanceMetrics []PerformanceMetric       `json:"performance_metrics,omitempty" validate:"dive"`
	Users              []PipelineDescriptionUser `json:"users,omitempty"`
	Configuration      *ScoringConfiguration     `json:"configuration,omitempty"`
}

type ScoreSolutionResponse struct {
	RequestID string `json:"request_id"`
}

type GetScoreSolutionResultsRequest struct {
	RequestID string `json:"request_id" validate:"required"`
}

type GetScoreSolutionResultsResponse struct {
	Progress Progress `json:"progress"`
	Scores   []Score  `json:"scores,omitempty"`
}

type ProduceSolutionRequest struct {
	SolutionID       string   `json:"fitted_solution_id" validate:"required"`
	Inputs           []Value  `json:"inputs" validate:"required,min=1"`
	ExposeOutputs    []string `json:"expose_outputs,omitempty"`
	ExposeValueTypes []string `json:"expose_value_types,omitempty"`
}

type ProduceSolutionResponse struct {
	RequestID string `json:"request_id"`
}

type GetProduceSolutionResultsRequest struct {
	RequestID string `json:"request_id" validate:"required"`
}

type GetProduceSolutionResultsResponse struct {
	Progress       Progress         `json:"progress"`
	ExposedOutputs map[string]Value `json:"exposed_outputs,omitempty"`
}

type SolutionExportRequest struct {
	SolutionID string  `json:"solution_id" validate:"required"`
	Rank       float64 `json:"rank" validate:"gte=0"`
}

type SolutionExportResponse struct {
	FittedPipelineID string `json:"fitted_pipeline_id"`
}

type ListPrimitivesRequest struct{}

type ListPrimitivesResponse struct {
	Primitives []Primitive `json:"primitives"`
}
