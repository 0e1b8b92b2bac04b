package engine

import (
	"sync"

	"github.com/skreps/webgrab/internal/processor"
)

// Process exit codes, following the wget convention.
const (
	ExitOK             = 0
	ExitGenericError   = 1
	ExitParseError     = 2
	ExitFileIOError    = 3
	ExitNetworkFailure = 4
	ExitSSLError       = 5
	ExitProtocolError  = 7
	ExitServerError    = 8
)

// ExitTracker folds per-URL failure classes into a single process exit
// code. When failures of several classes occur, the lowest non-zero
// code wins, matching wget's precedence.
type ExitTracker struct {
	mu   sync.Mutex
	code int
}

// Observe implements the processor's OnError callback.
func (t *ExitTracker) Observe(class processor.ErrorClass) {
	code := classCode(class)
	if code == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.code == 0 || code < t.code {
		t.code = code
	}
}

// Code returns the exit code for the run so far.
func (t *ExitTracker) Code() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.code
}

func classCode(class processor.ErrorClass) int {
	switch class {
	case processor.ClassNetwork:
		return ExitNetworkFailure
	case processor.ClassSSL:
		return ExitSSLError
	case processor.ClassProtocol:
		return ExitProtocolError
	case processor.ClassServerError:
		return ExitServerError
	case processor.ClassFileIO:
		return ExitFileIOError
	default:
		return ExitGenericError
	}
}
