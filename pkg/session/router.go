package session

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/esp32-mcp/mcp-client-go/pkg/log"
	"github.com/esp32-mcp/mcp-client-go/pkg/rpc"
	"github.com/esp32-mcp/mcp-client-go/pkg/subscription"
	"github.com/esp32-mcp/mcp-client-go/pkg/wire"
)

// Route is the outcome of routing one inbound frame.
type Route uint8

const (
	// RouteDropped means the frame was valid but nothing wanted it.
	RouteDropped Route = iota
	// RouteResponse means the frame settled a pending request.
	RouteResponse
	// RouteNotification means the frame was handed to the subscription registry.
	RouteNotification
	// RouteControl means the frame was a heartbeat control frame.
	RouteControl
	// RouteMalformed means the frame could not be parsed.
	RouteMalformed
)

// String returns the route name.
func (r Route) String() string {
	switch r {
	case RouteDropped:
		return "DROPPED"
	case RouteResponse:
		return "RESPONSE"
	case RouteNotification:
		return "NOTIFICATION"
	case RouteControl:
		return "CONTROL"
	case RouteMalformed:
		return "MALFORMED"
	default:
		return "UNKNOWN"
	}
}

// Router classifies inbound frames and dispatches them.
type Router struct {
	correlator *rpc.Correlator
	registry   *subscription.Registry

	logger         *slog.Logger
	protocolLogger log.Logger

	counts [RouteMalformed + 1]atomic.Uint64
}

// NewRouter creates a router dispatching to c and r.
func NewRouter(c *rpc.Correlator, r *subscription.Registry) *Router {
	return &Router{correlator: c, registry: r}
}

// SetLogger sets the operational logger. Not safe to call while routing.
func (r *Router) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// SetProtocolLogger sets the protocol logger. Not safe to call while routing.
func (r *Router) SetProtocolLogger(logger log.Logger) {
	r.protocolLogger = logger
}

// Route parses one frame received on connection connID and dispatches it.
// It never panics on peer input; malformed frames are logged and discarded.
func (r *Router) Route(connID string, data []byte) Route {
	route := r.route(connID, data)
	r.counts[route].Add(1)
	return route
}

func (r *Router) route(connID string, data []byte) Route {
	msg, err := wire.Decode(data)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("discarding malformed frame", "conn_id", connID, "size", len(data), "error", err)
		}
		r.logError(connID, err)
		return RouteMalformed
	}

	switch msg.Kind {
	case wire.KindNotification:
		return r.routeNotification(connID, msg.Notification)

	case wire.KindResponse:
		r.logResponse(connID, msg.Response)
		if !r.correlator.Resolve(msg.Response) {
			if r.logger != nil {
				r.logger.Debug("dropping unmatched response", "conn_id", connID, "id", msg.Response.ID)
			}
			return RouteDropped
		}
		return RouteResponse

	case wire.KindControl:
		if msg.Control.Type == wire.ControlPong {
			r.logControl(connID, log.ControlMsgPong)
		}
		if r.logger != nil {
			r.logger.Debug("control frame", "conn_id", connID, "type", msg.Control.Type)
		}
		return RouteControl

	default:
		if r.logger != nil {
			r.logger.Debug("dropping unroutable frame", "conn_id", connID, "size", len(data))
		}
		return RouteDropped
	}
}

func (r *Router) routeNotification(connID string, n *wire.Notification) Route {
	if n.Method != wire.MethodResourceUpdated {
		r.logNotification(connID, n, "")
		if r.logger != nil {
			r.logger.Debug("ignoring notification", "conn_id", connID, "method", n.Method)
		}
		return RouteDropped
	}

	var params wire.ResourceParams
	if err := wire.DecodeParams(n, &params); err != nil || params.URI == "" {
		if r.logger != nil {
			r.logger.Warn("discarding update without uri", "conn_id", connID, "error", err)
		}
		r.logNotification(connID, n, "")
		return RouteMalformed
	}

	r.logNotification(connID, n, params.URI)
	if !r.registry.Notify(params.URI) {
		if r.logger != nil {
			r.logger.Debug("no subscription for update", "conn_id", connID, "uri", params.URI)
		}
		return RouteDropped
	}
	return RouteNotification
}

// Count returns how many frames took route rt.
func (r *Router) Count(rt Route) uint64 {
	if int(rt) >= len(r.counts) {
		return 0
	}
	return r.counts[rt].Load()
}

func (r *Router) logResponse(connID string, resp *wire.Response) {
	if r.protocolLogger == nil {
		return
	}
	me := &log.MessageEvent{
		Type:      log.MessageTypeResponse,
		MessageID: resp.ID,
		Payload:   resp.Result,
	}
	if method, age, ok := r.correlator.Inflight(resp.ID); ok {
		me.Method = method
		me.Latency = &age
	}
	if resp.Error != nil {
		code := resp.Error.Code
		me.ErrorCode = &code
		me.ErrorMessage = resp.Error.Message
	}
	r.protocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message:      me,
	})
}

func (r *Router) logNotification(connID string, n *wire.Notification, uri string) {
	if r.protocolLogger == nil {
		return
	}
	r.protocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:    log.MessageTypeNotification,
			Method:  n.Method,
			URI:     uri,
			Payload: n.Params,
		},
	})
}

func (r *Router) logControl(connID string, t log.ControlMsgType) {
	if r.protocolLogger == nil {
		return
	}
	r.protocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: t},
	})
}

func (r *Router) logError(connID string, err error) {
	if r.protocolLogger == nil {
		return
	}
	r.protocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: "decoding inbound frame",
		},
	})
}
