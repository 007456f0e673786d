package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/host"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/ops"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/shared/id"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 64 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    64 << 10,
	WriteBufferSize:   64 << 10,
	EnableCompression: true,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler manages WebSocket connections.
type Handler struct {
	ch      *host.Channel
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandler creates a WebSocket handler over ch.
func NewHandler(ch *host.Channel, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ch: ch, metrics: metrics, logger: logger}
}

// HandleConnection upgrades the request and serves frames until the peer
// goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &session{
		h:      h,
		conn:   conn,
		logger: h.logger.With(zap.String("conn_id", id.NewConnID().String())),
	}
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}
	s.serve(c.Request.Context())
}

type session struct {
	h      *Handler
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func (s *session) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		s.wg.Wait()
		s.conn.Close()
	}()

	s.logger.Debug("websocket connected")
	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.wg.Add(1)
	go s.keepalive(ctx)

	for {
		kind, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		s.record("in")

		if kind != websocket.BinaryMessage {
			s.close(websocket.CloseUnsupportedData, "binary frames only")
			return
		}
		call, err := DecodeCall(frame)
		if err != nil {
			s.close(websocket.CloseProtocolError, err.Error())
			return
		}
		s.handle(ctx, call)
	}
}

func (s *session) handle(ctx context.Context, call Call) {
	// ReadMessage returns a fresh buffer per frame; call may outlive it.
	pending, err := s.h.ch.Start(call.OpID, call.Control, call.ZeroCopy)
	if err != nil {
		s.fail(call, err)
		return
	}

	mode, err := pending.Dispatched(ctx)
	if err != nil {
		return
	}
	if mode == dispatch.ModeSync {
		s.reply(ctx, call, pending)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reply(ctx, call, pending)
	}()
}

func (s *session) reply(ctx context.Context, call Call, pending *host.Pending) {
	reply, err := pending.Wait(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.fail(call, err)
		}
		return
	}
	s.write(EncodeReply(call.OpID, reply.Buf))
}

// fail answers a call that never produced an envelope. Unknown ops are the
// caller's fault; anything else is internal.
func (s *session) fail(call Call, err error) {
	var promiseID *uint64
	if req, derr := codec.DecodeRequest(call.Control); derr == nil {
		promiseID = req.PromiseID
	}

	rec := operror.Internal(err.Error())
	if errors.Is(err, ops.ErrUnknownOp) {
		rec = operror.TypeError(err.Error())
	}
	s.logger.Warn("op call failed", zap.Uint32("op_id", call.OpID), zap.Error(err))
	s.write(EncodeReply(call.OpID, codec.EncodeErr(promiseID, rec)))
}

func (s *session) write(frame []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		s.logger.Debug("websocket write failed", zap.Error(err))
		return
	}
	s.record("out")
}

func (s *session) close(code int, reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (s *session) keepalive(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *session) record(direction string) {
	if s.h.metrics != nil {
		s.h.metrics.RecordWSMessage(direction)
	}
}
