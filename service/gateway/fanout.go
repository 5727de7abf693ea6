package gateway

import "sync"

type fanoutJob struct {
	conns   []*Conn
	payload []byte
}

// Fanout spreads a broadcast over a small worker pool so one large snapshot
// never stalls the caller. Slow clients are skipped by Queue.
type Fanout struct {
	jobs      chan fanoutJob
	closeOnce sync.Once
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 2
	}
	if queue <= 0 {
		queue = 64
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	for i := 0; i < workers; i++ {
		go func() {
			for job := range f.jobs {
				for _, c := range job.conns {
					c.Queue(job.payload)
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Broadcast(conns []*Conn, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	f.jobs <- fanoutJob{conns: conns, payload: payload}
}

func (f *Fanout) Close() {
	f.closeOnce.Do(func() { close(f.jobs) })
}
