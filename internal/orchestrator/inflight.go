package orchestrator

import (
	"sync"

	"github.com/Bugaddr/audiolens/internal/cas"
)

// inflightTable tracks which audio identities are being transcribed right
// now. The first job to claim an identity becomes its leader and runs the
// model; later jobs receive the leader's done channel and wait, then reread
// the transcript cache instead of starting a second run.
type inflightTable struct {
	mu   sync.Mutex
	runs map[cas.Identity]chan struct{}
}

func newInflightTable() *inflightTable {
	return &inflightTable{runs: make(map[cas.Identity]chan struct{})}
}

// Begin claims identity for the caller. It returns (done, true) when the
// caller is now the leader, or the current leader's done channel and false
// when a run is already underway.
func (t *inflightTable) Begin(identity cas.Identity) (<-chan struct{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if done, ok := t.runs[identity]; ok {
		return done, false
	}
	done := make(chan struct{})
	t.runs[identity] = done
	return done, true
}

// End releases identity and wakes every waiter. Only the leader calls End,
// exactly once, whether the run succeeded or failed.
func (t *inflightTable) End(identity cas.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if done, ok := t.runs[identity]; ok {
		delete(t.runs, identity)
		close(done)
	}
}
