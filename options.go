package tether

import "github.com/ripkitten-co/tether/internal/codecs"

type Option func(*storeConfig)

type storeConfig struct {
	codec codecs.Codec
}

func defaultConfig() *storeConfig {
	return &storeConfig{
		codec: codecs.NewJSONIter(),
	}
}

// WithCodec overrides the JSON codec used for metadata and snapshot columns.
func WithCodec(c codecs.Codec) Option {
	return func(cfg *storeConfig) {
		cfg.codec = c
	}
}
