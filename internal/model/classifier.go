package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sync/semaphore"

	"github.com/Brownie44l1/describer/internal/describe"
)

// Classifier runs an image classification network with preallocated input and output
// tensors. Runs are serialized because the tensors are shared.
type Classifier struct {
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	sem          *semaphore.Weighted
}

func NewClassifier(modelPath, metadataPath string) (*Classifier, error) {
	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	metadata.applyDefaults()
	if err := metadata.validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata %s: %w", metadataPath, err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Classifier{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		sem:          semaphore.NewWeighted(1),
	}, nil
}

// Scores returns a copy of the network output for tensor.
func (c *Classifier) Scores(ctx context.Context, tensor describe.ImageTensor) ([]float32, error) {
	if err := c.checkShape(tensor); err != nil {
		return nil, err
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	copy(c.inputTensor.GetData(), tensor.Data)
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: inference failed: %w", describe.ErrInference, err)
	}

	out := c.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (c *Classifier) checkShape(tensor describe.ImageTensor) error {
	for i, dim := range c.Metadata.InputShape {
		if tensor.Shape[i] != dim {
			return fmt.Errorf("%w: expected input shape %v, got %v", describe.ErrInference, c.Metadata.InputShape, tensor.Shape)
		}
	}
	if len(tensor.Data) != c.Metadata.InputSize() {
		return fmt.Errorf("%w: expected %d values, got %d", describe.ErrInference, c.Metadata.InputSize(), len(tensor.Data))
	}
	return nil
}

func (c *Classifier) Close() {
	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
}
