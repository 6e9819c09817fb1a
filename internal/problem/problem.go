// Package problem describes what a search is asked to solve: the task type,
// the target column and the metrics solutions are scored with.
package problem

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TaskType is the kind of learning task.
type TaskType string

const (
	Classification TaskType = "CLASSIFICATION"
	Regression     TaskType = "REGRESSION"
)

// Metric names a performance metric.
type Metric string

const (
	Accuracy             Metric = "ACCURACY"
	F1Macro              Metric = "F1_MACRO"
	MeanSquaredError     Metric = "MEAN_SQUARED_ERROR"
	RootMeanSquaredError Metric = "ROOT_MEAN_SQUARED_ERROR"
	MeanAbsoluteError    Metric = "MEAN_ABSOLUTE_ERROR"
	RSquared             Metric = "R_SQUARED"
)

// Metrics lists every supported metric in a stable order.
var Metrics = []Metric{
	Accuracy, F1Macro, MeanSquaredError, RootMeanSquaredError, MeanAbsoluteError, RSquared,
}

// ErrUnknownMetric is returned for metric names outside Metrics.
var ErrUnknownMetric = errors.New("unknown metric")

// ParseMetric resolves a metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if !slices.Contains(Metrics, m) {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

// HigherIsBetter reports whether larger values of m are better.
func (m Metric) HigherIsBetter() bool {
	switch m {
	case Accuracy, F1Macro, RSquared:
		return true
	default:
		return false
	}
}

// Classification reports whether m scores label predictions.
func (m Metric) Classification() bool {
	return m == Accuracy || m == F1Macro
}

// PerformanceMetric is a metric with its optional parameters.
type PerformanceMetric struct {
	Metric   Metric `yaml:"metric" json:"metric" validate:"required"`
	PosLabel string `yaml:"pos_label,omitempty" json:"pos_label,omitempty"`
	K        int    `yaml:"k,omitempty" json:"k,omitempty" validate:"gte=0"`
}

// Target identifies the column a problem predicts.
type Target struct {
	TargetIndex int    `yaml:"target_index" json:"target_index" validate:"gte=0"`
	ResourceID  string `yaml:"resource_id,omitempty" json:"resource_id,omitempty"`
	ColumnIndex int    `yaml:"column_index" json:"column_index" validate:"gte=0"`
	ColumnName  string `yaml:"column_name" json:"column_name" validate:"required"`
}

// Input binds a dataset to the targets predicted from it.
type Input struct {
	DatasetID string   `yaml:"dataset_id" json:"dataset_id"`
	Targets   []Target `yaml:"targets" json:"targets" validate:"required,min=1,dive"`
}

// Problem is a problem description.
type Problem struct {
	ID          string              `yaml:"id" json:"id" validate:"required"`
	Version     string              `yaml:"version,omitempty" json:"version,omitempty"`
	Name        string              `yaml:"name,omitempty" json:"name,omitempty"`
	TaskType    TaskType            `yaml:"task_type" json:"task_type" validate:"required,oneof=CLASSIFICATION REGRESSION"`
	TaskSubtype string              `yaml:"task_subtype,omitempty" json:"task_subtype,omitempty"`
	Metrics     []PerformanceMetric `yaml:"performance_metrics" json:"performance_metrics" validate:"dive"`
	Inputs      []Input             `yaml:"inputs" json:"inputs" validate:"required,min=1,dive"`
}

var validate = validator.New()

// Validate checks required fields, the task type and every metric name.
// A problem without metrics is valid; DefaultMetrics fills them in.
func (p *Problem) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid problem: %w", err)
	}
	for _, m := range p.Metrics {
		if _, err := ParseMetric(string(m.Metric)); err != nil {
			return fmt.Errorf("invalid problem: %w", err)
		}
		if p.TaskType == Regression && m.Metric.Classification() {
			return fmt.Errorf("invalid problem: metric %s does not apply to %s", m.Metric, p.TaskType)
		}
	}
	return nil
}

// TargetColumn returns the name of the first target column.
func (p *Problem) TargetColumn() string {
	if len(p.Inputs) == 0 || len(p.Inputs[0].Targets) == 0 {
		return ""
	}
	return p.Inputs[0].Targets[0].ColumnName
}

// EffectiveMetrics returns the declared metrics, or the defaults for the
// task type when none are declared.
func (p *Problem) EffectiveMetrics() []PerformanceMetric {
	if len(p.Metrics) > 0 {
		return p.Metrics
	}
	return DefaultMetrics(p.TaskType)
}

// DefaultMetrics returns the metric used when a problem declares none.
func DefaultMetrics(t TaskType) []PerformanceMetric {
	if t == Regression {
		return []PerformanceMetric{{Metric: MeanSquaredError}}
	}
	return []PerformanceMetric{{Metric: Accuracy}}
}

// Load reads a YAML problem description and validates it.
func Load(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML problem description and validates it.
func Parse(data []byte) (*Problem, error) {
	var p Problem
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse problem: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
