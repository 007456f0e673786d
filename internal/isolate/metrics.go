package isolate

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
)

// OpMetrics counts bridge traffic for one isolate.
type OpMetrics struct {
	OpsDispatched           uint64 `json:"opsDispatched"`
	OpsDispatchedSync       uint64 `json:"opsDispatchedSync"`
	OpsDispatchedAsync      uint64 `json:"opsDispatchedAsync"`
	OpsDispatchedAsyncUnref uint64 `json:"opsDispatchedAsyncUnref"`
	OpsCompleted            uint64 `json:"opsCompleted"`
	OpsCompletedSync        uint64 `json:"opsCompletedSync"`
	OpsCompletedAsync       uint64 `json:"opsCompletedAsync"`
	OpsCompletedAsyncUnref  uint64 `json:"opsCompletedAsyncUnref"`
	BytesSentControl        uint64 `json:"bytesSentControl"`
	BytesSentData           uint64 `json:"bytesSentData"`
	BytesReceived           uint64 `json:"bytesReceived"`
}

type opCounters struct {
	mu sync.Mutex
	m  OpMetrics
}

func (c *opCounters) dispatched(mode dispatch.Mode, control, zeroCopy int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m.OpsDispatched++
	c.m.BytesSentControl += uint64(control)
	c.m.BytesSentData += uint64(zeroCopy)
	switch mode {
	case dispatch.ModeSync:
		c.m.OpsDispatchedSync++
	case dispatch.ModeAsync:
		c.m.OpsDispatchedAsync++
	case dispatch.ModeAsyncUnref:
		c.m.OpsDispatchedAsyncUnref++
	}
}

func (c *opCounters) completed(mode dispatch.Mode, response int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m.OpsCompleted++
	c.m.BytesReceived += uint64(response)
	switch mode {
	case dispatch.ModeSync:
		c.m.OpsCompletedSync++
	case dispatch.ModeAsync:
		c.m.OpsCompletedAsync++
	case dispatch.ModeAsyncUnref:
		c.m.OpsCompletedAsyncUnref++
	}
}

func (c *opCounters) snapshot() OpMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m
}
