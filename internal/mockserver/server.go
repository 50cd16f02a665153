// Package mockserver provides an in-process MCP websocket server for tests.
//
// It answers initialize and the resources/* methods from an in-memory
// resource table, pushes update notifications to subscribed clients, and
// can inject faults: dropped connections, refused upgrades, silent
// requests, and error responses.
package mockserver

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/esp32-mcp/mcp-client-go/pkg/wire"
)

// Defaults reported by initialize.
const (
	DefaultServerName    = "ESP32-MCP-Mock"
	DefaultServerVersion = "1.0.0"

	// Path is the HTTP path the websocket endpoint is served on.
	Path = "/ws"
)

// request is an inbound JSON-RPC request as the server sees it.
type request struct {
	Version string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Type    string          `json:"type"`
}

// Request records one request received by the server.
type Request struct {
	ID     uint64
	Method string
	URI    string
}

// Server is a mock MCP server.
type Server struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	clients   map[*client]bool
	resources map[string]wire.Resource
	data      map[string]json.RawMessage
	requests  []Request
	silent    map[string]bool
	errors    map[string]wire.Error
	rejects   map[string]string
	refuse    bool
	info      wire.ServerInfo

	pings       atomic.Int64
	connections atomic.Int64
}

// client is one connected websocket.
type client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]bool
}

func (c *client) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *client) writeRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// New starts a mock server with the default resource table on a loopback port.
func New() *Server {
	s := newServer()
	s.server = httptest.NewServer(s.handler())
	return s
}

// Listen starts a mock server on addr, e.g. ":9000".
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := newServer()
	s.server = httptest.NewUnstartedServer(s.handler())
	s.server.Listener.Close()
	s.server.Listener = ln
	s.server.Start()
	return s, nil
}

func newServer() *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*client]bool),
		resources: make(map[string]wire.Resource),
		data:      make(map[string]json.RawMessage),
		silent:    make(map[string]bool),
		errors:    make(map[string]wire.Error),
		rejects:   make(map[string]string),
		info:      wire.ServerInfo{Name: DefaultServerName, Version: DefaultServerVersion},
	}
	s.resources["system://info"] = wire.Resource{Name: "System Info", URI: "system://info", Type: "system"}
	s.data["system://info"] = json.RawMessage(`{"uptime":1,"freeHeap":200000}`)
	s.resources["network://status"] = wire.Resource{Name: "Network Status", URI: "network://status", Type: "network"}
	s.data["network://status"] = json.RawMessage(`{"connected":true,"rssi":-60}`)
	s.resources["sensor://temperature"] = wire.Resource{Name: "Temperature", URI: "sensor://temperature", Type: "sensor", Value: "21.5"}
	s.data["sensor://temperature"] = json.RawMessage(`21.5`)
	return s
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWebSocket)
	return mux
}

// URL returns the websocket URL of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + Path
}

// Port returns the TCP port the server listens on.
func (s *Server) Port() uint16 {
	if addr, ok := s.server.Listener.Addr().(*net.TCPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

// Close drops all clients and stops the server.
func (s *Server) Close() {
	s.DropAll()
	s.server.Close()
}

// SetServerInfo sets the identity returned by initialize.
func (s *Server) SetServerInfo(name, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = wire.ServerInfo{Name: name, Version: version}
}

// SetRefuse makes the server reject websocket upgrades.
func (s *Server) SetRefuse(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = refuse
}

// SetSilent makes the server swallow requests for method without replying.
func (s *Server) SetSilent(method string, silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent[method] = silent
}

// SetError makes the server answer method with a JSON-RPC error.
func (s *Server) SetError(method string, code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[method] = wire.Error{Code: code, Message: message}
}

// SetReject makes the server answer method with success=false.
func (s *Server) SetReject(method, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects[method] = message
}

// ClearFaults removes all injected request faults.
func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = make(map[string]bool)
	s.errors = make(map[string]wire.Error)
	s.rejects = make(map[string]string)
}

// SetResource adds or replaces a resource and its data without notifying.
func (s *Server) SetResource(r wire.Resource, data json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[r.URI] = r
	s.data[r.URI] = data
}

// UpdateValue changes a resource value and notifies subscribed clients.
// It returns the number of clients notified.
func (s *Server) UpdateValue(uri string, value json.RawMessage) int {
	s.mu.Lock()
	if _, ok := s.resources[uri]; ok {
		s.data[uri] = value
	}
	clients := s.clientList()
	s.mu.Unlock()

	n := 0
	for _, c := range clients {
		c.mu.Lock()
		subscribed := c.subs[uri]
		c.mu.Unlock()
		if subscribed && s.notify(c, uri) == nil {
			n++
		}
	}
	return n
}

// Notify pushes an update notification for uri to every client, subscribed
// or not.
func (s *Server) Notify(uri string) {
	s.mu.Lock()
	clients := s.clientList()
	s.mu.Unlock()

	for _, c := range clients {
		_ = s.notify(c, uri)
	}
}

// SendRaw writes data as a text frame to every client.
func (s *Server) SendRaw(data []byte) {
	s.mu.Lock()
	clients := s.clientList()
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.writeRaw(data)
	}
}

func (s *Server) notify(c *client, uri string) error {
	return c.write(map[string]any{
		"jsonrpc": wire.Version,
		"method":  wire.MethodResourceUpdated,
		"params":  wire.ResourceParams{URI: uri},
	})
}

// DropAll closes every client connection without a close handshake.
func (s *Server) DropAll() {
	s.mu.Lock()
	clients := s.clientList()
	s.clients = make(map[*client]bool)
	s.mu.Unlock()

	for _, c := range clients {
		c.ws.Close()
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Connections returns the number of accepted websocket connections.
func (s *Server) Connections() int {
	return int(s.connections.Load())
}

// Pings returns the number of ping frames received.
func (s *Server) Pings() int {
	return int(s.pings.Load())
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// CountRequests returns how many requests for method (and uri, if not
// empty) were received.
func (s *Server) CountRequests(method, uri string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && (uri == "" || r.URI == uri) {
			n++
		}
	}
	return n
}

// clientList returns the clients. s.mu must be held.
func (s *Server) clientList() []*client {
	list := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		list = append(list, c)
	}
	return list
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	refuse := s.refuse
	s.mu.Unlock()
	if refuse {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.connections.Add(1)

	c := &client{ws: ws, subs: make(map[string]bool)}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(c, data)
	}
}

func (s *Server) handleFrame(c *client, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	if req.Type == wire.ControlPing && req.Method == "" {
		s.pings.Add(1)
		return
	}
	if req.ID == nil {
		return
	}

	var params wire.ResourceParams
	_ = json.Unmarshal(req.Params, &params)

	s.mu.Lock()
	s.requests = append(s.requests, Request{ID: *req.ID, Method: req.Method, URI: params.URI})
	silent := s.silent[req.Method]
	rpcErr, hasErr := s.errors[req.Method]
	rejectMsg, reject := s.rejects[req.Method]
	s.mu.Unlock()

	if silent {
		return
	}
	if hasErr {
		_ = c.write(map[string]any{"jsonrpc": wire.Version, "id": *req.ID, "error": rpcErr})
		return
	}
	if reject {
		s.reply(c, *req.ID, wire.Result{Success: false, Message: rejectMsg})
		return
	}

	s.reply(c, *req.ID, s.dispatch(c, req.Method, params.URI))
}

func (s *Server) dispatch(c *client, method, uri string) wire.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch method {
	case wire.MethodInitialize:
		data, _ := json.Marshal(s.info)
		return wire.Result{Success: true, Data: data}

	case wire.MethodResourcesList:
		uris := make([]string, 0, len(s.resources))
		for u := range s.resources {
			uris = append(uris, u)
		}
		sort.Strings(uris)
		list := wire.ResourceList{Resources: make([]wire.Resource, 0, len(uris))}
		for _, u := range uris {
			list.Resources = append(list.Resources, s.resources[u])
		}
		data, _ := json.Marshal(list)
		return wire.Result{Success: true, Data: data}

	case wire.MethodResourcesRead:
		if _, ok := s.resources[uri]; !ok {
			return wire.Result{Success: false, Message: "Resource not found"}
		}
		return wire.Result{Success: true, Data: s.data[uri]}

	case wire.MethodResourcesSubscribe:
		if _, ok := s.resources[uri]; !ok {
			return wire.Result{Success: false, Message: "Resource not found"}
		}
		c.mu.Lock()
		c.subs[uri] = true
		c.mu.Unlock()
		return wire.Result{Success: true, Message: "Subscribed"}

	case wire.MethodResourcesUnsubscribe:
		c.mu.Lock()
		delete(c.subs, uri)
		c.mu.Unlock()
		return wire.Result{Success: true, Message: "Unsubscribed"}

	default:
		return wire.Result{Success: false, Message: "Unknown method"}
	}
}

func (s *Server) reply(c *client, id uint64, result wire.Result) {
	_ = c.write(map[string]any{"jsonrpc": wire.Version, "id": id, "result": result})
}
