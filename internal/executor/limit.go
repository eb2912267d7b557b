package executor

import "io"

// limitWriter truncates after n bytes instead of erroring, so a submission
// spraying output cannot balloon memory or abort the run.
type limitWriter struct {
	w io.Writer
	n int64
}

func newLimitWriter(w io.Writer, n int64) *limitWriter {
	return &limitWriter{w: w, n: n}
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return len(p), nil
	}
	if int64(len(p)) > l.n {
		if _, err := l.w.Write(p[:l.n]); err != nil {
			return 0, err
		}
		l.n = 0
		return len(p), nil
	}
	l.n -= int64(len(p))
	return l.w.Write(p)
}
