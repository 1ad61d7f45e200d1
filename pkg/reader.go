package calocell

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

const maxLineSize = 64 * 1024 * 1024

// EventReader reads one JSON event per line, honouring the skip and
// max_events settings.
type EventReader struct {
	scanner   *bufio.Scanner
	skip      int
	maxEvents int
	line      int
	done      bool
	EvtCount  int
}

func NewEventReader(r io.Reader, skip, maxEvents int) *EventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLineSize)
	return &EventReader{
		scanner:   scanner,
		skip:      skip,
		maxEvents: maxEvents,
		EvtCount:  -1,
	}
}

// Next returns the next event to process, or io.EOF once the input or the
// max_events budget is exhausted. A malformed line gives an *ErrDecodeEvent
// and reading may continue; any other error is final.
func (r *EventReader) Next() (EventRecord, error) {
	for {
		if r.done {
			return EventRecord{}, io.EOF
		}
		if !r.scanner.Scan() {
			r.done = true
			if err := r.scanner.Err(); err != nil {
				return EventRecord{}, fmt.Errorf("error reading line %d: %w", r.line+1, err)
			}
			return EventRecord{}, io.EOF
		}
		r.line++
		data := bytes.TrimSpace(r.scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		r.EvtCount++
		if r.EvtCount >= r.maxEvents {
			if configuration.Verbosity > 0 {
				logger.Info("Max events reached", "eventReader")
			}
			r.done = true
			return EventRecord{}, io.EOF
		}
		if r.EvtCount < r.skip {
			if configuration.Verbosity > 0 {
				message := fmt.Sprintf("Skipping event %d", r.EvtCount)
				logger.Info(message, "eventReader")
			}
			continue
		}

		var record EventRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return EventRecord{}, &ErrDecodeEvent{Line: r.line, Err: err}
		}
		if configuration.Verbosity > 0 {
			message := fmt.Sprintf("Reading event %d with number %d", r.EvtCount, record.EventNumber)
			logger.Info(message, "eventReader")
		}
		return record, nil
	}
}
