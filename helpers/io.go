package helpers

import "io"

// WriteAll repeats Write until b is consumed. Serial drivers may accept
// fewer bytes than given without error.
func WriteAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}
