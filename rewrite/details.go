package rewrite

import (
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

// Details describes one rewritten function for debugging.
type Details struct {
	Func      string `yaml:"func"`
	Position  string `yaml:"position"`
	Original  string `yaml:"original_source"`
	Rewritten string `yaml:"new_source"`
	Sites     int    `yaml:"sites"`
	Skipped   int    `yaml:"skipped"`
}

// DetailsWriter appends details as a stream of YAML documents.
type DetailsWriter struct {
	mu  sync.Mutex
	enc *yaml.Encoder
}

func NewDetailsWriter(w io.Writer) *DetailsWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &DetailsWriter{enc: enc}
}

func (w *DetailsWriter) Write(d Details) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(d)
}

func (w *DetailsWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Close()
}
