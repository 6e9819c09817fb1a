package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/roach88/ta2/internal/api"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/pipeline"
	"github.com/roach88/ta2/internal/primitives"
	"github.com/roach88/ta2/internal/session"
	"github.com/roach88/ta2/internal/templates"
)

func TestDescriptionRoundTrip(t *testing.T) {
	reg := primitives.Registry()
	lib, err := templates.Default(reg)
	require.NoError(t, err)

	for _, tmpl := range lib.Templates() {
		t.Run(tmpl.Name, func(t *testing.T) {
			p, err := lib.Build(tmpl, "pl-"+tmpl.Name, "label", 0)
			require.NoError(t, err)
			doc, err := p.Document()
			require.NoError(t, err)

			// The wire description has no free-form metadata.
			ignoreExtra := cmpopts.IgnoreFields(ir.PipelineDocument{}, "Extra")

			desc, err := descriptionFromDocument(doc)
			require.NoError(t, err)
			back, err := documentFromDescription(desc, reg)
			require.NoError(t, err)
			if diff := cmp.Diff(doc, back, ignoreExtra); diff != "" {
				t.Errorf("document changed on the wire (-want +got):\n%s", diff)
			}

			rebuilt, err := pipelineFromDescription(desc, reg)
			require.NoError(t, err)
			rebuiltDoc, err := rebuilt.Document()
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(doc, rebuiltDoc, ignoreExtra))
		})
	}
}

func TestDescriptionRoundTripPrimitiveArgument(t *testing.T) {
	reg := primitives.Registry()

	p := pipeline.New("pl-estimator")
	in := p.AddInput("inputs")
	s0 := pipeline.NewPrimitiveStep(primitives.DatasetToFrame().Descriptor())
	require.NoError(t, s0.AddArgument("inputs", pipeline.ArgContainer, in))
	frame, err := s0.AddOutput("produce")
	require.NoError(t, err)
	_, err = p.AddStep(s0)
	require.NoError(t, err)

	s1 := pipeline.NewPrimitiveStep(primitives.MajorityClass().Descriptor())
	require.NoError(t, s1.AddArgument("inputs", pipeline.ArgContainer, frame))
	require.NoError(t, s1.AddArgument("estimator", pipeline.ArgPrimitive, pipeline.StepRef(0)))
	out, err := s1.AddOutput("produce")
	require.NoError(t, err)
	_, err = p.AddStep(s1)
	require.NoError(t, err)
	_, err = p.AddOutput(out, "predictions")
	require.NoError(t, err)

	doc, err := p.Document()
	require.NoError(t, err)
	desc, err := descriptionFromDocument(doc)
	require.NoError(t, err)

	arg := desc.Steps[1].Primitive.Arguments["estimator"]
	require.NotNil(t, arg.Primitive)
	assert.Equal(t, 0, arg.Primitive.Data)
	assert.Nil(t, arg.Container)
	assert.Nil(t, arg.Data)

	rebuilt, err := pipelineFromDescription(desc, reg)
	require.NoError(t, err)
	rebuiltDoc, err := rebuilt.Document()
	require.NoError(t, err)
	ignoreExtra := cmpopts.IgnoreFields(ir.PipelineDocument{}, "Extra")
	assert.Empty(t, cmp.Diff(doc, rebuiltDoc, ignoreExtra))
}

func TestArgumentFromWire(t *testing.T) {
	tests := []struct {
		name    string
		in      api.PrimitiveStepArgument
		want    ir.ArgumentDoc
		wantErr bool
	}{
		{
			name: "container",
			in:   api.PrimitiveStepArgument{Container: &api.ContainerArgument{Data: "inputs.0"}},
			want: ir.ArgumentDoc{Type: ir.ArgContainer, Data: "inputs.0"},
		},
		{
			name: "data",
			in:   api.PrimitiveStepArgument{Data: &api.DataArgument{Data: "steps.0.produce"}},
			want: ir.ArgumentDoc{Type: ir.ArgData, Data: "steps.0.produce"},
		},
		{
			name: "primitive",
			in:   api.PrimitiveStepArgument{Primitive: &api.PrimitiveArgument{Data: 1}},
			want: ir.ArgumentDoc{Type: ir.ArgPrimitive, Data: "steps.1"},
		},
		{
			name:    "no binding",
			in:      api.PrimitiveStepArgument{},
			wantErr: true,
		},
		{
			name: "two bindings",
			in: api.PrimitiveStepArgument{
				Data:      &api.DataArgument{Data: "steps.0.produce"},
				Primitive: &api.PrimitiveArgument{Data: 0},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := argumentFromWire(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHyperparamFromWire(t *testing.T) {
	empty := []any{}
	tests := []struct {
		name     string
		in       api.PrimitiveStepHyperparameter
		declared ir.Kind
		want     ir.ArgumentDoc
		wantErr  bool
	}{
		{
			name:     "empty list takes declared kind",
			in:       api.PrimitiveStepHyperparameter{Value: &api.ValueArgument{Data: api.Value{List: &empty}}},
			declared: ir.KindDouble,
			want:     ir.ArgumentDoc{Type: ir.ArgValue, Value: &ir.Literal{Value: ir.EmptyList(ir.KindDouble)}},
		},
		{
			name:     "undeclared empty list is a string list",
			in:       api.PrimitiveStepHyperparameter{Value: &api.ValueArgument{Data: api.Value{List: &empty}}},
			declared: ir.KindInvalid,
			want:     ir.ArgumentDoc{Type: ir.ArgValue, Value: &ir.Literal{Value: ir.StringList{}}},
		},
		{
			name: "primitive reference",
			in:   api.PrimitiveStepHyperparameter{Primitive: &api.PrimitiveArgument{Data: 2}},
			want: ir.ArgumentDoc{Type: ir.ArgPrimitive, Data: "steps.2"},
		},
		{
			name: "data reference",
			in:   api.PrimitiveStepHyperparameter{Data: &api.DataArgument{Data: "steps.0.produce"}},
			want: ir.ArgumentDoc{Type: ir.ArgData, Data: "steps.0.produce"},
		},
		{
			name:    "no binding",
			in:      api.PrimitiveStepHyperparameter{},
			wantErr: true,
		},
		{
			name: "two bindings",
			in: api.PrimitiveStepHyperparameter{
				Data:      &api.DataArgument{Data: "steps.0.produce"},
				Primitive: &api.PrimitiveArgument{Data: 0},
			},
			wantErr: true,
		},
		{
			name:    "dataset uri is not a literal",
			in:      api.PrimitiveStepHyperparameter{Value: &api.ValueArgument{Data: api.DatasetURIValue("toy")}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hyperparamFromWire(tt.in, tt.declared)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStepFromWireRejectsAmbiguousSteps(t *testing.T) {
	reg := primitives.Registry()

	_, err := stepFromWire(api.PipelineDescriptionStep{}, reg)
	assert.Error(t, err)

	_, err = stepFromWire(api.PipelineDescriptionStep{
		Primitive:   &api.PrimitivePipelineDescriptionStep{},
		Placeholder: &api.PlaceholderPipelineDescriptionStep{},
	}, reg)
	assert.Error(t, err)

	_, err = stepFromWire(api.PipelineDescriptionStep{
		Primitive: &api.PrimitivePipelineDescriptionStep{Primitive: api.Primitive{ID: "nope"}},
	}, reg)
	assert.ErrorIs(t, err, engine.ErrUnknownPrimitive)

	sd, err := stepFromWire(api.PipelineDescriptionStep{Pipeline: &api.SubpipelinePipelineDescriptionStep{}}, reg)
	require.NoError(t, err)
	assert.Equal(t, ir.StepSubpipeline, sd.Type)
}

func TestDescriptionFromDocumentRejectsUnsupportedSteps(t *testing.T) {
	doc := &ir.PipelineDocument{ID: "p", Steps: []ir.StepDoc{{Type: ir.StepPlaceholder}}}
	_, err := descriptionFromDocument(doc)
	assert.ErrorIs(t, err, pipeline.ErrUnsupportedStep)
}

func TestExposedOutputs(t *testing.T) {
	got := exposedOutputs(map[string]any{
		"outputs.0": []string{"a", "b"},
		"outputs.1": ir.Int64(3),
		"outputs.2": struct{}{},
	})
	require.NotNil(t, got["outputs.0"].StringList)
	assert.Equal(t, []string{"a", "b"}, *got["outputs.0"].StringList)
	require.NotNil(t, got["outputs.1"].Int64)
	assert.Equal(t, int64(3), *got["outputs.1"].Int64)
	require.NotNil(t, got["outputs.2"].Error)
	assert.Contains(t, *got["outputs.2"].Error, "cannot be exposed")
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{&session.UnknownSessionError{SearchID: "s"}, codes.NotFound},
		{fmt.Errorf("wrapped: %w", &session.UnknownRequestError{RequestID: "r"}), codes.NotFound},
		{&session.UnknownSolutionError{SolutionID: "x"}, codes.NotFound},
		{&session.InvalidRequestError{Op: "search", Err: errors.New("bad")}, codes.InvalidArgument},
		{invalid("template", errors.New("bad")), codes.InvalidArgument},
		{invalid("template", &pipeline.UnsupportedStepError{Step: 0, Kind: pipeline.KindPlaceholder}), codes.Unimplemented},
		{&pipeline.GraphConstructionError{Op: "add step", Step: 1, Err: pipeline.ErrForwardReference}, codes.InvalidArgument},
		{session.ErrNoArchiver, codes.FailedPrecondition},
		{session.ErrManagerClosed, codes.Unavailable},
		{context.Canceled, codes.Canceled},
		{&session.SearchFailedError{SearchID: "s", Err: errors.New("boom")}, codes.Internal},
		{status.Error(codes.AlreadyExists, "kept"), codes.AlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			err := toStatus(tt.err)
			assert.Equal(t, tt.want, status.Code(err))
			if _, isStatus := status.FromError(tt.err); !isStatus {
				assert.Equal(t, tt.err.Error(), status.Convert(err).Message())
			}
		})
	}
	assert.NoError(t, toStatus(nil))
}
