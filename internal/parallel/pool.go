// Package parallel runs compute workgroups across a fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a pool of goroutines executing workgroup grids.
//
// Each worker owns a queue. A worker that drains its own queue steals from
// the others, which keeps the grid balanced when workgroups have uneven cost.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			return
		case fn := <-own:
			fn()
			continue
		default:
		}

		if fn := p.steal(id); fn != nil {
			fn()
			continue
		}

		select {
		case <-p.done:
			return
		case fn := <-own:
			fn()
		}
	}
}

func (p *Pool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case fn := <-p.queues[i]:
			return fn
		default:
		}
	}
	return nil
}

// Dispatch calls fn once for every workgroup id in the grid
// [0,groups[0]) x [0,groups[1]) x [0,groups[2]) and returns when all calls
// have finished. Workgroups run in no particular order.
//
// If the pool is closed, the grid runs on the calling goroutine.
func (p *Pool) Dispatch(groups [3]uint32, fn func(wg [3]uint32)) {
	total := uint64(groups[0]) * uint64(groups[1]) * uint64(groups[2])
	if total == 0 {
		return
	}
	if !p.running.Load() || p.workers == 1 || total == 1 {
		for i := range total {
			fn(unflatten(i, groups))
		}
		return
	}

	// One task per row of workgroups keeps queue traffic proportional to
	// the grid height rather than its area.
	rows := uint64(groups[1]) * uint64(groups[2])
	var pending sync.WaitGroup
	pending.Add(int(rows))
	for r := range rows {
		y := uint32(r % uint64(groups[1]))
		z := uint32(r / uint64(groups[1]))
		task := func() {
			defer pending.Done()
			for x := range groups[0] {
				fn([3]uint32{x, y, z})
			}
		}
		select {
		case p.queues[r%uint64(p.workers)] <- task:
		case <-p.done:
			task()
		}
	}
	pending.Wait()
}

func unflatten(i uint64, groups [3]uint32) [3]uint32 {
	x := i % uint64(groups[0])
	i /= uint64(groups[0])
	y := i % uint64(groups[1])
	z := i / uint64(groups[1])
	return [3]uint32{uint32(x), uint32(y), uint32(z)}
}

// Close stops the workers. Close must not race with Dispatch.
// Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int {
	return p.workers
}
