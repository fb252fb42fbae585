package scheduler

import (
	"fmt"
	"io"
	"log"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/event"
)

// Context provides annotation points for schedule exploration, keeping
// execution logic separate from observability: a Scheduler calls
// these at well-defined points and a Context decides whether, and how,
// to report them.
type Context interface {
	ScheduleBegin(mainTid por.ThreadId)
	ThreadScheduled(tid por.ThreadId, op Operation)
	EventCommitted(e *event.Event)
	DeadlockDetected(blocked []por.ThreadId)
	ScheduleComplete(events int, err error)
}

// BaseContext is the zero-overhead no-op Context, used whenever
// --log-por-events is not set.
type BaseContext struct{}

func (BaseContext) ScheduleBegin(por.ThreadId)           {}
func (BaseContext) ThreadScheduled(por.ThreadId, Operation) {}
func (BaseContext) EventCommitted(*event.Event)          {}
func (BaseContext) DeadlockDetected([]por.ThreadId)      {}
func (BaseContext) ScheduleComplete(int, error)          {}

// LoggingContext reports every scheduling decision through a stdlib
// *log.Logger, the explorer CLI's --log-por-events backend.
type LoggingContext struct {
	logger *log.Logger
}

// NewLoggingContext builds a Context that writes one line per event to w.
func NewLoggingContext(w io.Writer) *LoggingContext {
	return &LoggingContext{logger: log.New(w, "", log.LstdFlags)}
}

func (c *LoggingContext) ScheduleBegin(mainTid por.ThreadId) {
	c.logger.Printf("schedule begin, main thread %s", mainTid)
}

func (c *LoggingContext) ThreadScheduled(tid por.ThreadId, op Operation) {
	c.logger.Printf("thread %s -> %s", tid, op.Kind)
}

func (c *LoggingContext) EventCommitted(e *event.Event) {
	c.logger.Printf("committed %s", e)
}

func (c *LoggingContext) DeadlockDetected(blocked []por.ThreadId) {
	c.logger.Printf("deadlock: %d threads blocked: %s", len(blocked), fmt.Sprint(blocked))
}

func (c *LoggingContext) ScheduleComplete(events int, err error) {
	if err != nil {
		c.logger.Printf("schedule complete with error after %d events: %v", events, err)
		return
	}
	c.logger.Printf("schedule complete, %d events committed", events)
}
