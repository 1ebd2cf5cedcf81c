package statemachine

import "github.com/alfredjeanlab/oj/internal/state"

// WorkerStart transitions a Stopped worker to Idle.
func WorkerStart(w state.Worker) state.Worker {
	w.Status = state.WorkerIdle
	return w
}

// WorkerTakePipeline transitions an Idle worker to Processing{pipelineID}.
// It is a no-op (returns w unchanged) when the worker is not available.
func WorkerTakePipeline(w state.Worker, pipelineID string) state.Worker {
	if !w.IsAvailable() {
		return w
	}
	w.Status = state.WorkerProcessing
	w.PipelineID = pipelineID
	return w
}

// WorkerFinish transitions a Processing worker back to Idle.
func WorkerFinish(w state.Worker) state.Worker {
	w.Status = state.WorkerIdle
	w.PipelineID = ""
	return w
}

// WorkerStop transitions any worker to Stopped.
func WorkerStop(w state.Worker) state.Worker {
	w.Status = state.WorkerStopped
	w.PipelineID = ""
	return w
}
