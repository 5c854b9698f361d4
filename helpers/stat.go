package helpers

import (
	"expvar"
	"io"
)

// StatWriter adds every written byte count to V.
type StatWriter struct {
	W io.Writer
	V *expvar.Int
}

var _ io.Writer = &StatWriter{}

func NewStatWriter(w io.Writer, v *expvar.Int) *StatWriter { return &StatWriter{W: w, V: v} }

func (self *StatWriter) Write(p []byte) (int, error) {
	n, err := self.W.Write(p)
	self.V.Add(int64(n))
	return n, err
}
