package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/san-kum/simbridge/internal/bridge"
	"github.com/san-kum/simbridge/internal/protocol"
	"github.com/san-kum/simbridge/internal/transport"
)

// RuntimeImage is the staged simulation runtime handed to the peer with Init.
type RuntimeImage struct {
	Name string
	Data []byte
}

// Loader resolves the runtime image.
type Loader interface {
	Load(ctx context.Context) (RuntimeImage, error)
}

// Spawner starts the simulation side and returns the link to it.
type Spawner interface {
	Spawn(ctx context.Context) (transport.Transport, error)
}

// FileLoader reads the runtime image from disk.
type FileLoader struct {
	Path string
}

func (l FileLoader) Load(ctx context.Context) (RuntimeImage, error) {
	if err := ctx.Err(); err != nil {
		return RuntimeImage{}, err
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return RuntimeImage{}, fmt.Errorf("%w: %w", bridge.ErrRuntimeUnavailable, err)
	}
	if len(data) == 0 {
		return RuntimeImage{}, fmt.Errorf("%w: %s is empty", bridge.ErrRuntimeUnavailable, l.Path)
	}
	return RuntimeImage{Name: filepath.Base(l.Path), Data: data}, nil
}

// StaticLoader serves an image already in memory.
type StaticLoader struct {
	Image RuntimeImage
}

func (l StaticLoader) Load(context.Context) (RuntimeImage, error) {
	return l.Image, nil
}

// InputSource supplies the key/input vector carried by each step.
type InputSource interface {
	Keys() []float64
}

// InputFunc adapts a function to InputSource.
type InputFunc func() []float64

func (f InputFunc) Keys() []float64 { return f() }

func inputVector(src InputSource) []float64 {
	keys := make([]float64, protocol.InputSize)
	if src != nil {
		copy(keys, src.Keys())
	}
	return keys
}
