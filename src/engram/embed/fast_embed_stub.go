//go:build !fastembed

package embed

import (
	"context"
	"fmt"
)

// FastEmbedOptions configures the on-device fastembed provider.
type FastEmbedOptions struct {
	CacheDir  string
	MaxLength int
	BatchSize int
}

// FastEmbedder is unavailable without the fastembed build tag.
type FastEmbedder struct{}

func defaultFastEmbedOptions() *FastEmbedOptions { return nil }

func NewFastEmbedder(context.Context, *FastEmbedOptions) (*FastEmbedder, error) {
	return nil, fmt.Errorf("fastembed support not included; rebuild with -tags fastembed")
}

func (*FastEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("fastembed support not included")
}

func (*FastEmbedder) Close() error { return nil }
