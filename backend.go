package tether

import (
	"github.com/ripkitten-co/tether/internal/codecs"
	"github.com/ripkitten-co/tether/internal/pg"
	"github.com/ripkitten-co/tether/schema"
)

type backend struct {
	exec   pg.Executor
	codec  codecs.Codec
	schema *schema.Bootstrap
}

// Backend is the capability bundle subpackages build on. *Store implements it.
type Backend interface {
	DBExecutor() pg.Executor
	JSONCodec() codecs.Codec
	SchemaBootstrap() *schema.Bootstrap
}
