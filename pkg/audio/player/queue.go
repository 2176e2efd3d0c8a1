package player

import (
	"fmt"
	"io"
	"sync"
)

// chunkQueue is a growable byte FIFO between Feed and the drain goroutine.
//
// Read blocks until data is written or the queue is closed. After CloseWrite
// reads continue until the queue is empty and then return io.EOF.
// CloseWithError drops queued bytes and fails both ends immediately.
type chunkQueue struct {
	writeNotify chan struct{}

	mu         sync.Mutex
	closeWrite bool
	closeErr   error
	buf        []byte
}

func newChunkQueue(n int) *chunkQueue {
	return &chunkQueue{
		writeNotify: make(chan struct{}, 1),
		buf:         make([]byte, 0, n),
	}
}

// Write appends p to the queue.
func (q *chunkQueue) Write(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return 0, fmt.Errorf("player: write to closed queue: %w", q.closeErr)
	}
	if q.closeWrite {
		return 0, fmt.Errorf("player: write to closed queue: %w", io.ErrClosedPipe)
	}
	select {
	case q.writeNotify <- struct{}{}:
	default:
	}
	q.buf = append(q.buf, p...)
	return len(p), nil
}

// Read copies queued bytes into p.
func (q *chunkQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return 0, q.closeErr
	}
	for len(q.buf) == 0 {
		if q.closeWrite {
			return 0, io.EOF
		}
		q.mu.Unlock()
		<-q.writeNotify
		q.mu.Lock()
		if q.closeErr != nil {
			return 0, q.closeErr
		}
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

// Len returns the number of queued bytes.
func (q *chunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// CloseWrite stops accepting writes; queued bytes remain readable.
func (q *chunkQueue) CloseWrite() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeWrite {
		return nil
	}
	q.closeWrite = true
	close(q.writeNotify)
	return nil
}

// CloseWithError discards queued bytes and fails pending and future calls
// with err. A nil err means io.ErrClosedPipe.
func (q *chunkQueue) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return nil
	}
	q.closeErr = err
	q.buf = nil
	if !q.closeWrite {
		q.closeWrite = true
		close(q.writeNotify)
	}
	return nil
}
