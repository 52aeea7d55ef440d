package worker

type Worker struct {
	manager    *Manager
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool, manager *Manager) *Worker {
	return &Worker{
		manager:    manager,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

// Start runs the worker loop. After each job the channel goes back to the
// pool; a Stop job retires the worker instead.
func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			switch job.Type {
			case Start:
				w.manager.handleStart(job.StartTask)
			case Consult:
				w.manager.handleConsult(job.ConsultTask)
			case Receipt:
				w.manager.handleReceipt(job.ReceiptTask)
			case Stop:
				w.pool.retire(w.jobChannel)
				return
			}
			w.pool.Release(w.jobChannel)
		}
	}()
}
