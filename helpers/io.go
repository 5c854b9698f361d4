package helpers

import (
	"io"
)

// WriteAll repeats Write until p is consumed. Serial drivers may accept less than asked.
func WriteAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
