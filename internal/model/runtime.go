package model

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrRuntimeUnavailable means the ONNX Runtime shared library could not be loaded.
var ErrRuntimeUnavailable = errors.New("onnxruntime unavailable")

// Runtime owns the process-wide ONNX Runtime environment. Sessions must be closed before it.
type Runtime struct{}

func InitRuntime(libraryPath string) (*Runtime, error) {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntimeUnavailable, err)
	}
	return &Runtime{}, nil
}

func (r *Runtime) Close() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
