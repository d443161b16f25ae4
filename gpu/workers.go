package gpu

import (
	"runtime"
	"sync"
)

// groupChunk is a contiguous range of flattened workgroup indices.
type groupChunk struct {
	start, end int
	job        *dispatchJob
}

// dispatchJob is the dispatch the workers are currently executing.
type dispatchJob struct {
	kernel *Kernel
	params *Params
	groups [3]int
}

// workerPool runs workgroups on persistent goroutines. A dispatch fans its
// groups out in chunks and blocks until every chunk reports done.
type workerPool struct {
	numWorkers int

	workChan chan groupChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func newWorkerPool(workers int) *workerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &workerPool{numWorkers: workers}
}

// start launches the worker goroutines.
func (p *workerPool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan groupChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk := <-p.workChan:
			for g := chunk.start; g < chunk.end; g++ {
				runGroup(chunk.job, g)
			}
			p.doneChan <- struct{}{}
		}
	}
}

// run executes every workgroup of job across the pool.
func (p *workerPool) run(job *dispatchJob, total int) {
	chunks := p.numWorkers
	if chunks > total {
		chunks = total
	}
	per := (total + chunks - 1) / chunks

	sent := 0
	for start := 0; start < total; start += per {
		end := start + per
		if end > total {
			end = total
		}
		p.workChan <- groupChunk{start: start, end: end, job: job}
		sent++
	}
	for i := 0; i < sent; i++ {
		<-p.doneChan
	}
}

// runGroup executes every invocation of the flattened workgroup g.
func runGroup(job *dispatchJob, g int) {
	gx := job.groups[0]
	gy := job.groups[1]
	wg := job.kernel.Workgroup

	bx := g % gx
	by := (g / gx) % gy
	bz := g / (gx * gy)

	x0, y0, z0 := bx*wg[0], by*wg[1], bz*wg[2]
	for z := z0; z < z0+wg[2]; z++ {
		for y := y0; y < y0+wg[1]; y++ {
			for x := x0; x < x0+wg[0]; x++ {
				job.kernel.Fn(job.params, x, y, z)
			}
		}
	}
}
