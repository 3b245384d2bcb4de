// SPDX-License-Identifier: MIT

package runner

import "sync"

// tailCap bounds the diagnostic output carried into ExecutionError.
const tailCap = 4096

// tailBuffer keeps only the last tailCap bytes written to it.
type tailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	truncated bool
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if len(t.buf) > tailCap {
		t.buf = t.buf[len(t.buf)-tailCap:]
		t.truncated = true
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.truncated {
		return "..." + string(t.buf)
	}
	return string(t.buf)
}
