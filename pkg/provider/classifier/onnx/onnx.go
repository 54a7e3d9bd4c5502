// Package onnx implements classifier.Engine with ONNX Runtime via
// github.com/yalue/onnxruntime_go.
//
// The engine expects a YAMNet-style export: a single float32 waveform input
// of shape [InputSize] and a float32 score output of shape [frames, classes].
// When the model emits more than one frame the per-class scores are averaged,
// matching how YAMNet summarises a clip.
//
// ONNX Runtime's environment is process-global. The first New call
// initialises it and the last Close destroys it.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/MrWong99/noisewatch/pkg/provider/classifier"
)

// Default tensor names of the YAMNet ONNX export.
const (
	defaultInputName  = "waveform"
	defaultOutputName = "scores"
)

// env reference-counts the process-global ONNX Runtime environment.
var env struct {
	mu   sync.Mutex
	refs int
}

func acquireEnv(libPath string) error {
	env.mu.Lock()
	defer env.mu.Unlock()
	if env.refs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx: initialize runtime: %w", err)
		}
	}
	env.refs++
	return nil
}

func releaseEnv() error {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.refs--
	if env.refs > 0 {
		return nil
	}
	env.refs = 0
	return ort.DestroyEnvironment()
}

// Option is a functional option for New.
type Option func(*Engine)

// WithSharedLibrary sets the path of the onnxruntime shared library. When
// empty, the platform default search path is used.
func WithSharedLibrary(path string) Option {
	return func(e *Engine) { e.libPath = path }
}

// WithInputSize overrides the model's waveform length. Default: 15600.
func WithInputSize(n int) Option {
	return func(e *Engine) { e.inputSize = n }
}

// WithClasses overrides the number of scored classes. Default: 521.
func WithClasses(n int) Option {
	return func(e *Engine) { e.classes = n }
}

// WithOutputFrames sets the number of score frames the model emits for one
// window. Default: 1.
func WithOutputFrames(n int) Option {
	return func(e *Engine) { e.frames = n }
}

// WithTensorNames overrides the input and output tensor names.
func WithTensorNames(input, output string) Option {
	return func(e *Engine) {
		e.inputName = input
		e.outputName = output
	}
}

// Engine runs an ONNX audio event model. Run calls are serialised because
// the bound tensors are shared between calls.
type Engine struct {
	libPath    string
	inputName  string
	outputName string
	inputSize  int
	classes    int
	frames     int

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	closed  bool
}

// New loads the model at modelPath and binds its input and output tensors.
func New(modelPath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		inputName:  defaultInputName,
		outputName: defaultOutputName,
		inputSize:  classifier.YAMNetInputSize,
		classes:    classifier.YAMNetClasses,
		frames:     1,
	}
	for _, o := range opts {
		o(e)
	}
	if e.inputSize <= 0 || e.classes <= 0 || e.frames <= 0 {
		return nil, errors.New("onnx: input size, classes and frames must be positive")
	}

	if err := acquireEnv(e.libPath); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(e.inputSize)))
	if err != nil {
		_ = releaseEnv()
		return nil, fmt.Errorf("onnx: allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(e.frames), int64(e.classes)))
	if err != nil {
		_ = input.Destroy()
		_ = releaseEnv()
		return nil, fmt.Errorf("onnx: allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{e.inputName}, []string{e.outputName},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		_ = releaseEnv()
		return nil, fmt.Errorf("onnx: load model %q: %w", modelPath, err)
	}

	e.session = session
	e.input = input
	e.output = output
	slog.Info("onnx: model loaded", "path", modelPath, "input_size", e.inputSize, "classes", e.classes)
	return e, nil
}

// InputSize implements classifier.Engine.
func (e *Engine) InputSize() int { return e.inputSize }

// NumClasses implements classifier.Engine.
func (e *Engine) NumClasses() int { return e.classes }

// Run implements classifier.Engine.
func (e *Engine) Run(ctx context.Context, input []float32) ([]float32, error) {
	if len(input) != e.inputSize {
		return nil, fmt.Errorf("onnx: input has %d samples, want %d", len(input), e.inputSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("onnx: engine closed")
	}

	copy(e.input.GetData(), input)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx: run: %w", err)
	}
	return meanFrames(e.output.GetData(), e.frames, e.classes), nil
}

// Close implements classifier.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	err := errors.Join(e.session.Destroy(), e.input.Destroy(), e.output.Destroy(), releaseEnv())
	if err != nil {
		return fmt.Errorf("onnx: close: %w", err)
	}
	return nil
}

// meanFrames averages a row-major [frames, classes] score matrix into one
// vector of length classes. The result never aliases data.
func meanFrames(data []float32, frames, classes int) []float32 {
	out := make([]float32, classes)
	if frames <= 1 {
		copy(out, data)
		return out
	}
	for f := range frames {
		row := data[f*classes : (f+1)*classes]
		for c, v := range row {
			out[c] += v
		}
	}
	for c := range out {
		out[c] /= float32(frames)
	}
	return out
}

var _ classifier.Engine = (*Engine)(nil)
