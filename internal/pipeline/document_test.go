package pipeline

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ta2/internal/ir"
)

func richPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p := New("rich",
		WithCreated(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		WithContext(ContextTesting),
		WithMetadata(Metadata{
			Name:        "knn",
			Description: "scaled nearest neighbours",
			Source:      SourceInfo{Name: "ta2-go", From: []string{"template:knn"}},
			Users:       []User{{ID: "alice", Reason: "search"}},
			Extra:       map[string]string{"grid": "3"},
		}),
	)
	in := p.AddInput("dataset")

	frame := NewPrimitiveStep(prim("frame"))
	require.NoError(t, frame.AddArgument("inputs", ArgContainer, in))
	_, err := p.AddStep(frame)
	require.NoError(t, err)
	frameOut, err := frame.AddOutput("produce")
	require.NoError(t, err)

	knn := NewPrimitiveStep(prim("knn"))
	require.NoError(t, knn.AddArgument("inputs", ArgContainer, frameOut))
	require.NoError(t, knn.AddArgument("outputs", ArgData, frameOut))
	require.NoError(t, knn.AddHyperparameter("base", ArgPrimitive, StepRef(0)))
	require.NoError(t, knn.SetHyperparameter("k", ir.Int64(3)))
	require.NoError(t, knn.SetHyperparameter("weights", ir.DoubleList{}))
	knn.AddUser(User{ID: "bob", Rationale: "tuned"})
	_, err = p.AddStep(knn)
	require.NoError(t, err)
	knnOut, err := knn.AddOutput("produce")
	require.NoError(t, err)

	_, err = p.AddOutput(knnOut, "predictions")
	require.NoError(t, err)
	return p
}

func TestDocumentRoundTrip(t *testing.T) {
	p := richPipeline(t)
	doc, err := p.Document()
	require.NoError(t, err)

	assert.Equal(t, ir.DocumentSchema, doc.Schema)
	assert.Equal(t, "2026-01-02T03:04:05Z", doc.Created)
	assert.Equal(t, "TESTING", doc.Context)
	assert.Equal(t, "steps.1.produce", doc.Outputs[0].Data)
	assert.Equal(t, ir.ArgumentDoc{Type: ir.ArgPrimitive, Data: "steps.0"}, doc.Steps[1].Hyperparams["base"])

	rebuilt, err := FromDocument(doc)
	require.NoError(t, err)
	require.NoError(t, rebuilt.Validate())

	again, err := rebuilt.Document()
	require.NoError(t, err)
	if diff := cmp.Diff(doc, again); diff != "" {
		t.Errorf("document changed across rebuild (-want +got):\n%s", diff)
	}
}

func TestDocumentSurvivesEncoding(t *testing.T) {
	p := richPipeline(t)
	doc, err := p.Document()
	require.NoError(t, err)
	require.NoError(t, doc.Seal())

	data, err := ir.MarshalDocument(doc)
	require.NoError(t, err)
	decoded, err := ir.UnmarshalDocument(data)
	require.NoError(t, err)
	require.NoError(t, decoded.Verify())

	rebuilt, err := FromDocument(decoded)
	require.NoError(t, err)

	hp, ok := rebuilt.Step(1).Hyperparameter("weights")
	require.True(t, ok)
	assert.Equal(t, "double_list", ir.Tag(hp.Value), "empty list keeps its element kind")
}

func TestDocumentRejectsUnsupportedSteps(t *testing.T) {
	p := New("p")
	_, err := p.AddStep(NewPrimitiveStep(prim("a")))
	require.NoError(t, err)
	_, err = p.AddStep(NewSubpipelineStep())
	require.NoError(t, err)

	_, err = p.Document()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedStep)

	var use *UnsupportedStepError
	require.ErrorAs(t, err, &use)
	assert.Equal(t, 1, use.Step)
	assert.Equal(t, KindSubpipeline, use.Kind)
}

func TestFromDocumentRejectsBadWiring(t *testing.T) {
	tests := []struct {
		name  string
		steps []ir.StepDoc
		want  error
	}{
		{
			name: "forward reference",
			steps: []ir.StepDoc{{
				Type:      ir.StepPrimitive,
				Primitive: prim("a"),
				Arguments: map[string]ir.ArgumentDoc{"inputs": {Type: ir.ArgContainer, Data: "steps.1.produce"}},
			}},
			want: ErrForwardReference,
		},
		{
			name:  "placeholder",
			steps: []ir.StepDoc{{Type: ir.StepPlaceholder}},
			want:  ErrUnsupportedStep,
		},
		{
			name: "malformed reference",
			steps: []ir.StepDoc{{
				Type:      ir.StepPrimitive,
				Primitive: prim("a"),
				Arguments: map[string]ir.ArgumentDoc{"inputs": {Type: ir.ArgContainer, Data: "input0"}},
			}},
			want: ErrInvalidRef,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &ir.PipelineDocument{
				Schema:  ir.DocumentSchema,
				ID:      "bad",
				Created: "2026-01-02T03:04:05Z",
				Context: "PRETRAINING",
				Inputs:  []ir.InputDoc{{Name: "dataset"}},
				Steps:   tt.steps,
			}
			_, err := FromDocument(doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
