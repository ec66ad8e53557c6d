// Package bitdump prints transferred bytes as bit strings without stalling
// the slot timer: bytes are queued and written by a separate goroutine.
package bitdump

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/valyala/bytebufferpool"
)

const defaultQueueHint = 64

// Dumper writes one line per byte: eight '0'/'1' characters, a tab, and the
// byte as a character in brackets.
type Dumper struct {
	q    *queue.Queue
	out  io.Writer
	done chan struct{}
	once sync.Once
}

// New starts a Dumper writing to out.
func New(out io.Writer) *Dumper {
	d := &Dumper{
		q:    queue.New(defaultQueueHint),
		out:  out,
		done: make(chan struct{}),
	}
	go d.drain()
	return d
}

// Byte queues b for printing. It never blocks on out.
func (d *Dumper) Byte(b byte) {
	_ = d.q.Put(b)
}

func (d *Dumper) drain() {
	defer close(d.done)
	for {
		items, err := d.q.Get(defaultQueueHint)
		if err != nil {
			return
		}
		d.write(items)
	}
}

func (d *Dumper) write(items []interface{}) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, it := range items {
		if b, ok := it.(byte); ok {
			AppendLine(buf, b)
		}
	}
	_, _ = d.out.Write(buf.B)
}

// Close flushes queued bytes and stops the writer.
func (d *Dumper) Close() error {
	d.once.Do(func() {
		for !d.q.Empty() {
			time.Sleep(time.Millisecond)
		}
		if rest := d.q.Dispose(); len(rest) > 0 {
			d.write(rest)
		}
		<-d.done
	})
	return nil
}

// AppendLine appends the dump line for b to buf.
func AppendLine(buf *bytebufferpool.ByteBuffer, b byte) {
	for mask := byte(1 << 7); mask > 0; mask >>= 1 {
		if b&mask != 0 {
			_ = buf.WriteByte('1')
		} else {
			_ = buf.WriteByte('0')
		}
	}
	_, _ = buf.WriteString("\t[")
	_ = buf.WriteByte(b)
	_, _ = buf.WriteString("]\n")
}

// Bits returns b as eight '0'/'1' characters, most significant bit first.
func Bits(b byte) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	AppendLine(buf, b)
	return string(buf.B[:8])
}

var errDisposed = errors.New("bitdump: closed")

// Err reports whether the dumper was closed.
func (d *Dumper) Err() error {
	if d.q.Disposed() {
		return errDisposed
	}
	return nil
}
