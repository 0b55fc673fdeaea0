package types

import (
	"encoding/json"
	"fmt"
)

// Dimensions is a pixel size
type Dimensions struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// String renders the size as WxH
func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// BoundingBox is a rectangle in pixel coordinates of the annotated image
type BoundingBox struct {
	X      int    `json:"x" jsonschema:"required,minimum=0"`
	Y      int    `json:"y" jsonschema:"required,minimum=0"`
	Width  int    `json:"width" jsonschema:"required,minimum=0"`
	Height int    `json:"height" jsonschema:"required,minimum=0"`
	Label  string `json:"label,omitempty"`
	Color  string `json:"color,omitempty"`
}

// AnnotationSet maps a source filename to the boxes drawn on it, in draw order
type AnnotationSet map[string][]BoundingBox

// ResizeResult describes a successful resize
type ResizeResult struct {
	OriginalSize Dimensions `json:"original_size"`
	NewSize      Dimensions `json:"new_size"`
	OutputPath   string     `json:"output_path"`
}

// AnnotateResult describes a successful annotation
type AnnotateResult struct {
	BoxesAdded int    `json:"boxes_added"`
	OutputPath string `json:"output_path"`
}

// Result is either a success carrying a value or a failure carrying an error.
type Result[T any] struct {
	value T
	err   error
}

// Success wraps a value
func Success[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Failure wraps an error. A nil error is replaced so the result still reads as failed.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = fmt.Errorf("unknown failure")
	}
	return Result[T]{err: err}
}

// OK reports whether the result is a success
func (r Result[T]) OK() bool {
	return r.err == nil
}

// Value returns the success value (zero value on failure)
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the failure error (nil on success)
func (r Result[T]) Err() error {
	return r.err
}

// MarshalJSON renders {"status":"success",...fields} or {"status":"error","error":"..."}
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.err != nil {
		return json.Marshal(struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}{"error", r.err.Error()})
	}

	raw, err := json.Marshal(r.value)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("result value must encode as a JSON object: %w", err)
	}
	fields["status"] = json.RawMessage(`"success"`)
	return json.Marshal(fields)
}

// ProcessedFile is one successful entry of a batch run
type ProcessedFile struct {
	File   string `json:"file"`
	Output string `json:"output"`
}

// FailedFile is one failed entry of a batch run
type FailedFile struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// BatchResult is the ledger of a batch run
type BatchResult struct {
	Processed []ProcessedFile `json:"processed"`
	Failed    []FailedFile    `json:"failed"`
	Total     int             `json:"total"`
}

// NewBatchResult returns an empty ledger whose lists encode as [] rather than null
func NewBatchResult() BatchResult {
	return BatchResult{
		Processed: []ProcessedFile{},
		Failed:    []FailedFile{},
	}
}
