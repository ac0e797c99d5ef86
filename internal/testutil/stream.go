// Package testutil holds scripted stand-ins for the streaming backend,
// shared by the pipeline and command-surface tests.
package testutil

import "github.com/mlukaszek/steel-llama/internal/ollama"

// Stream returns a pre-loaded chunk stream shaped the way the backend
// client delivers one: all chunks buffered, err (if any) buffered on the
// error channel, both channels closed.
func Stream(err error, chunks ...ollama.Chunk) (<-chan ollama.Chunk, <-chan error) {
	out := make(chan ollama.Chunk, len(chunks))
	errc := make(chan error, 1)
	for _, c := range chunks {
		out <- c
	}
	if err != nil {
		errc <- err
	}
	close(out)
	close(errc)
	return out, errc
}
