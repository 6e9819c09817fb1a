package ir

import (
	"encoding/json"
	"fmt"
)

// PrimitiveRef identifies a primitive implementation.
// The core treats it as opaque; only the engine's registry resolves it.
type PrimitiveRef struct {
	ID         string `json:"id"`
	Version    string `json:"version"`
	PythonPath string `json:"python_path"`
	Name       string `json:"name"`
	Digest     string `json:"digest,omitempty"`
}

// String returns "python_path@version".
func (r PrimitiveRef) String() string {
	return r.PythonPath + "@" + r.Version
}

// Argument type tags used in documents and on the wire.
const (
	ArgContainer = "CONTAINER"
	ArgData      = "DATA"
	ArgPrimitive = "PRIMITIVE"
	ArgValue     = "VALUE"
)

// Step type tags. Only StepPrimitive is ever written by this module.
const (
	StepPrimitive   = "PRIMITIVE"
	StepSubpipeline = "SUBPIPELINE"
	StepPlaceholder = "PLACEHOLDER"
)

// PipelineDocument is the schema-versioned structural record of a pipeline.
// Persistence adds FittedPipelineID and DatasetID; Digest covers every other
// field.
type PipelineDocument struct {
	Schema      string            `json:"schema"`
	ID          string            `json:"id"`
	Digest      string            `json:"digest,omitempty"`
	Created     string            `json:"created"`
	Context     string            `json:"context"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Source      *SourceDoc        `json:"source,omitempty"`
	Users       []UserDoc         `json:"users,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	Inputs      []InputDoc        `json:"inputs,omitempty"`
	Outputs     []OutputDoc       `json:"outputs,omitempty"`
	Steps       []StepDoc         `json:"steps,omitempty"`

	FittedPipelineID string `json:"fitted_pipeline_id,omitempty"`
	DatasetID        string `json:"dataset_id,omitempty"`
}

// SourceDoc records who or what produced a pipeline.
type SourceDoc struct {
	Name    string   `json:"name,omitempty"`
	Contact string   `json:"contact,omitempty"`
	From    []string `json:"from,omitempty"`
}

// UserDoc is a user annotation on a pipeline or step.
type UserDoc struct {
	ID        string `json:"id"`
	Reason    string `json:"reason,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// InputDoc declares a pipeline input.
type InputDoc struct {
	Name string `json:"name,omitempty"`
}

// OutputDoc declares a pipeline output; Data is a "steps.N.slot" reference.
type OutputDoc struct {
	Name string `json:"name,omitempty"`
	Data string `json:"data"`
}

// StepDoc is one step record.
type StepDoc struct {
	Type        string                 `json:"type"`
	Primitive   PrimitiveRef           `json:"primitive"`
	Arguments   map[string]ArgumentDoc `json:"arguments,omitempty"`
	Hyperparams map[string]ArgumentDoc `json:"hyperparams,omitempty"`
	Outputs     []StepOutputDoc        `json:"outputs,omitempty"`
	Users       []UserDoc              `json:"users,omitempty"`
}

// ArgumentDoc is a kind-tagged argument. Data holds the reference for
// CONTAINER, DATA and PRIMITIVE; Value holds the literal for VALUE.
type ArgumentDoc struct {
	Type  string   `json:"type"`
	Data  string   `json:"data,omitempty"`
	Value *Literal `json:"value,omitempty"`
}

// StepOutputDoc names a declared output slot.
type StepOutputDoc struct {
	ID string `json:"id"`
}

// ComputeDigest hashes the canonical form of the document with Digest
// cleared.
func (d *PipelineDocument) ComputeDigest() (string, error) {
	clone := *d
	clone.Digest = ""
	data, err := json.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("compute digest: %w", err)
	}
	canonical, err := CanonicalizeJSON(data)
	if err != nil {
		return "", fmt.Errorf("compute digest: %w", err)
	}
	return hashWithDomain(DomainPipeline, canonical), nil
}

// Seal sets Digest from the current contents.
func (d *PipelineDocument) Seal() error {
	digest, err := d.ComputeDigest()
	if err != nil {
		return err
	}
	d.Digest = digest
	return nil
}

// Verify checks Digest against the current contents.
// Documents without a digest are accepted.
func (d *PipelineDocument) Verify() error {
	if d.Digest == "" {
		return nil
	}
	digest, err := d.ComputeDigest()
	if err != nil {
		return err
	}
	if digest != d.Digest {
		return fmt.Errorf("digest mismatch: recorded %s, computed %s", d.Digest, digest)
	}
	return nil
}

// MarshalDocument encodes a document as canonical JSON.
func MarshalDocument(d *PipelineDocument) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return CanonicalizeJSON(data)
}

// UnmarshalDocument decodes a document and checks its schema tag.
func UnmarshalDocument(data []byte) (*PipelineDocument, error) {
	var d PipelineDocument
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if d.Schema != DocumentSchema {
		return nil, fmt.Errorf("unmarshal document: unsupported schema %q", d.Schema)
	}
	return &d, nil
}
