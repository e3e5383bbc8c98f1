package transfer

import (
	"context"
	"io"
)

type progress struct {
	callback   ProgressFunc
	expected   int64
	downloaded int64
}

// AddExpectedBytes records the expected size. A negative n means the size is unknown.
func (p *progress) AddExpectedBytes(n int64) {
	if n < 0 {
		p.expected = -1
	} else if p.expected >= 0 {
		p.expected += n
	}
	p.notify()
}

func (p *progress) AddDownloadedBytes(n int64) {
	p.downloaded += n
	p.notify()
}

// Write will ignore the data but will count it as downloaded, for use with io.MultiWriter.
func (p *progress) Write(b []byte) (int, error) {
	p.AddDownloadedBytes(int64(len(b)))
	return len(b), nil
}

func (p *progress) notify() {
	if p.callback != nil {
		p.callback(p.downloaded, p.expected)
	}
}

// A context-aware io.Reader wrapper.
type readerContext struct {
	ctx context.Context
	r   io.Reader
}

func (r *readerContext) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
