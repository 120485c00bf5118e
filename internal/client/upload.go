package client

import (
	"bytes"
	"sync"
)

// progressReader reports how much of a request body the transport has read.
type progressReader struct {
	r          *bytes.Reader
	total      int64
	onProgress func(pct int)

	mu   sync.Mutex
	read int64
	last int
}

func newProgressReader(body []byte, onProgress func(pct int)) *progressReader {
	return &progressReader{
		r:          bytes.NewReader(body),
		total:      int64(len(body)),
		onProgress: onProgress,
		last:       -1,
	}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		pct := 100
		if p.total > 0 {
			pct = int(p.read * 100 / p.total)
		}
		p.report(pct)
		p.mu.Unlock()
	}
	return n, err
}

// finish reports 100 if the transport never read the body to the end.
func (p *progressReader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.report(100)
}

// report must be called with p.mu held.
func (p *progressReader) report(pct int) {
	if p.onProgress == nil || pct <= p.last {
		return
	}
	p.last = pct
	p.onProgress(pct)
}
