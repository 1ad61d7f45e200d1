package main

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	calocell "github.com/lorenzetti/calocell_go/pkg"
)

type WorkerData struct {
	Seq    int
	Record calocell.EventRecord
}

type WorkerResult struct {
	Seq    int
	Number int
	Event  *calocell.Event
	Err    error
}

// RunSummary counts what happened to the events of a run.
type RunSummary struct {
	Read       int
	Written    int
	Discarded  int
	BadLines   int
	CellErrors int
	Missing    int
}

func worker(id int, maker *calocell.CellMaker, jobs <-chan WorkerData, results chan<- WorkerResult) {
	for job := range jobs {
		results <- processEvent(id, maker, job)
	}
}

func processEvent(id int, maker *calocell.CellMaker, job WorkerData) (res WorkerResult) {
	res = WorkerResult{Seq: job.Seq, Number: job.Record.EventNumber}
	defer func() {
		if r := recover(); r != nil {
			res.Event = nil
			res.Err = fmt.Errorf("worker %d recovered from panic on event %d: %v", id, job.Record.EventNumber, r)
		}
	}()
	if configuration.Verbosity > 1 {
		logger.Info(fmt.Sprintf("Worker %d processing event %d", id, job.Record.EventNumber), "workers")
	}
	res.Event, res.Err = maker.Process(job.Record)
	return res
}

func sendEventsToWorkers(reader *calocell.EventReader, jobs chan<- WorkerData, summary *RunSummary) {
	defer close(jobs)
	seq := 0
	for {
		record, err := reader.Next()
		if err != nil {
			var decodeErr *calocell.ErrDecodeEvent
			if errors.As(err, &decodeErr) {
				logger.Error(err.Error())
				summary.BadLines++
				continue
			}
			if err != io.EOF {
				logger.Error(fmt.Errorf("error reading event: %w", err).Error())
			}
			return
		}
		jobs <- WorkerData{Seq: seq, Record: record}
		seq++
	}
}

// EventSink receives the processed events in input order.
type EventSink interface {
	WriteEvent(event *calocell.Event) error
}

// processWorkerResults hands the events to sink in the order they were read.
func processWorkerResults(results <-chan WorkerResult, sink EventSink, summary *RunSummary) {
	pending := make(map[int]WorkerResult)
	next := 0
	var totalTime time.Duration
	for res := range results {
		pending[res.Seq] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			start := time.Now()
			handleResult(r, sink, summary)
			totalTime += time.Since(start)
		}
	}
	if configuration.Verbosity > 0 {
		logger.Info(fmt.Sprintf("Total time writing: %d ms", totalTime.Milliseconds()), "workers")
	}
}

func handleResult(r WorkerResult, sink EventSink, summary *RunSummary) {
	summary.Read++
	if r.Event != nil {
		summary.CellErrors += len(r.Event.CellErrors)
		summary.Missing += r.Event.Missing
	}
	if r.Err != nil {
		logger.Error(fmt.Sprintf("discarding event %d: %s: %v", r.Number, calocell.Kind(r.Err), r.Err))
		summary.Discarded++
		return
	}
	if sink == nil {
		return
	}
	if err := sink.WriteEvent(r.Event); err != nil {
		logger.Error(fmt.Sprintf("error writing event %d: %v", r.Number, err))
		summary.Discarded++
		return
	}
	summary.Written++
}

// runWorkers processes every event of reader on numWorkers goroutines.
// Writing happens on the calling goroutine.
func runWorkers(reader *calocell.EventReader, maker *calocell.CellMaker, sink EventSink, numWorkers int) RunSummary {
	var summary RunSummary
	jobs := make(chan WorkerData, numWorkers)
	results := make(chan WorkerResult, numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(id, maker, jobs, results)
		}(w)
	}
	go sendEventsToWorkers(reader, jobs, &summary)
	go func() {
		wg.Wait()
		close(results)
	}()

	processWorkerResults(results, sink, &summary)
	return summary
}
