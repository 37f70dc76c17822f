package kernel

import (
	"runtime"
	"sync"

	"github.com/samcharles93/quantkit/pkg/tensorq"
)

type matMulTask struct {
	dst, act []float32
	raw      []byte
	rowBytes int
	dot      rowDot
	m, k, n  int
	js, je   int
	done     chan struct{}
}

type matMulPool struct {
	size      int
	tasks     chan matMulTask
	doneSlots chan chan struct{}
}

var (
	matMulWorkPool *matMulPool
	matMulPoolOnce sync.Once
)

func getMatMulPool() *matMulPool {
	matMulPoolOnce.Do(func() {
		matMulWorkPool = newMatMulPool()
	})
	return matMulWorkPool
}

func newMatMulPool() *matMulPool {
	size := runtime.GOMAXPROCS(0)
	if size < 1 {
		size = 1
	}
	p := &matMulPool{
		size:      size,
		tasks:     make(chan matMulTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.doneSlots <- make(chan struct{}, 1)
	}
	for i := 0; i < size; i++ {
		go func() {
			// Each worker keeps a private scratch so the hot loop
			// never allocates.
			var scratch Scratch
			for task := range p.tasks {
				matMulRange(task.dst, task.act, task.raw, task.rowBytes,
					task.dot, &scratch, task.m, task.k, task.n, task.js, task.je)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// MatMulParallel is MatMul with the weight rows split across a persistent
// worker pool. Each output element is still accumulated by exactly one
// worker in the same block order as the serial path, so the result is
// bit-identical to MatMul.
func MatMulParallel(dst, act []float32, w *tensorq.Tensor, m, k, n int) error {
	dot, rowBytes, err := prepare(dst, act, w, m, k, n)
	if err != nil {
		return err
	}

	pool := getMatMulPool()
	workers := pool.size
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		var scratch Scratch
		matMulRange(dst, act, w.Raw(), rowBytes, dot, &scratch, m, k, n, 0, n)
		return nil
	}

	chunk := (n + workers - 1) / workers
	done := <-pool.doneSlots

	active := 0
	for i := 0; i < workers; i++ {
		js := i * chunk
		je := js + chunk
		if je > n {
			je = n
		}
		if js >= je {
			break
		}
		active++
		pool.tasks <- matMulTask{
			dst:      dst,
			act:      act,
			raw:      w.Raw(),
			rowBytes: rowBytes,
			dot:      dot,
			m:        m,
			k:        k,
			n:        n,
			js:       js,
			je:       je,
			done:     done,
		}
	}

	for i := 0; i < active; i++ {
		<-done
	}
	pool.doneSlots <- done
	return nil
}
