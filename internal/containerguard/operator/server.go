// Package operator — server.go
//
// Unix domain socket server for Ironpost operator overrides.
//
// Protocol: newline-delimited JSON over a Unix domain socket.
// Socket path: configurable, default /run/ironpost/operator.sock.
// Permissions: 0600, owned by root. Only root can connect.
//
// Commands (JSON request -> JSON response):
//
//	{"cmd":"exempt","container_id":"a1b2c3"}
//	  -> Exempts the container from automatic isolation until unexempted.
//	  -> Response: {"ok":true,"container_id":"a1b2c3d4...","exempt":true}
//
//	{"cmd":"unexempt","container_id":"a1b2c3"}
//	  -> Removes a previously set exemption.
//	  -> Response: {"ok":true,"container_id":"a1b2c3"}
//
//	{"cmd":"isolate","container_id":"a1b2c3","action":"pause"}
//	  -> Executes an isolation action immediately, bypassing policy
//	     evaluation. action is one of pause|stop|network_disconnect.
//	  -> Response: {"ok":true,"container_id":"a1b2c3d4...","success":true}
//
//	{"cmd":"status","container_id":"a1b2c3"}
//	  -> Returns the resolved container id and exemption state; "exempt"
//	     is omitted when the container is not exempt.
//	  -> Response: {"ok":true,"container_id":"...","exempt":true}
//
//	{"cmd":"list"}
//	  -> Returns every container in the guard's inventory cache.
//	  -> Response: {"ok":true,"containers":[{"id":"...","name":"...",...}]}
//
// Security:
//   - Socket is created with 0600 permissions; only root can connect.
//   - Each connection is handled in a separate goroutine.
//   - Max concurrent connections: 4 (operator use only, not high-throughput).
//   - Max request size: 4096 bytes (prevents memory exhaustion).
//   - Connection timeout: one 10s deadline covering the whole read and write.
//
// A direct structural adaptation of the teacher's internal/operator
// server: same newline-delimited-JSON-over-Unix-socket protocol, same
// connection-semaphore/size/timeout bounds, same remove-stale-socket +
// chmod 0600 bring-up — repointed from PID escalation-state overrides to
// container isolation/exemption overrides.
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerapi"
	"github.com/dongwonkwak/ironpost/internal/containerguard/policy"
	"github.com/dongwonkwak/ironpost/internal/events"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// Control is the interface the operator server uses to read and mutate
// container-guard state. internal/containerguard/guard.Guard satisfies it.
type Control interface {
	Exempt(containerID string) (dockerapi.ContainerInfo, error)
	Unexempt(containerID string)
	Status(containerID string) (info dockerapi.ContainerInfo, exempt bool, found bool)
	ListCached() []dockerapi.ContainerInfo
	ManualIsolate(ctx context.Context, containerID string, kind policy.ActionKind) (events.ActionEvent, error)
}

// Request is the JSON structure for operator commands.
type Request struct {
	Cmd         string `json:"cmd"` // exempt | unexempt | isolate | status | list
	ContainerID string `json:"container_id,omitempty"`
	Action      string `json:"action,omitempty"` // target action for isolate
}

// containerJSON is the wire shape for a ContainerInfo in responses.
type containerJSON struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	State  string `json:"state"`
	Exempt bool   `json:"exempt,omitempty"`
}

// Response is the JSON structure for operator command responses.
type Response struct {
	OK          bool            `json:"ok"`
	Error       string          `json:"error,omitempty"`
	ContainerID string          `json:"container_id,omitempty"`
	Exempt      bool            `json:"exempt,omitempty"`
	Success     bool            `json:"success,omitempty"`
	Containers  []containerJSON `json:"containers,omitempty"`
}

// Server is the operator Unix domain socket server.
type Server struct {
	socketPath string
	ctrl       Control
	log        *zap.Logger
	sem        chan struct{} // semaphore: max concurrent connections
}

// NewServer creates an operator Server.
func NewServer(socketPath string, ctrl Control, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		ctrl:       ctrl,
		log:        log.Named("operator"),
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe starts the operator socket server. Removes any stale
// socket file before binding. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("operator: remove stale socket %q: %w", s.socketPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("operator: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("operator: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("operator: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("operator socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("read error", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	resp := s.dispatch(req)
	s.writeResponse(conn, resp)
}

func (s *Server) dispatch(req Request) Response {
	switch req.Cmd {
	case "exempt":
		return s.cmdExempt(req)
	case "unexempt":
		return s.cmdUnexempt(req)
	case "isolate":
		return s.cmdIsolate(req)
	case "status":
		return s.cmdStatus(req)
	case "list":
		return s.cmdList()
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) cmdExempt(req Request) Response {
	if req.ContainerID == "" {
		return Response{OK: false, Error: "container_id required for exempt"}
	}
	info, err := s.ctrl.Exempt(req.ContainerID)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	s.log.Info("operator: container exempted", zap.String("container_id", info.ID))
	return Response{OK: true, ContainerID: info.ID, Exempt: true}
}

func (s *Server) cmdUnexempt(req Request) Response {
	if req.ContainerID == "" {
		return Response{OK: false, Error: "container_id required for unexempt"}
	}
	s.ctrl.Unexempt(req.ContainerID)
	s.log.Info("operator: container exemption removed", zap.String("container_id", req.ContainerID))
	return Response{OK: true, ContainerID: req.ContainerID}
}

func (s *Server) cmdIsolate(req Request) Response {
	if req.ContainerID == "" {
		return Response{OK: false, Error: "container_id required for isolate"}
	}
	kind, err := parseActionKind(req.Action)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	actionEvent, err := s.ctrl.ManualIsolate(ctx, req.ContainerID, kind)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	s.log.Info("operator: manual isolation executed",
		zap.String("container_id", actionEvent.ContainerID),
		zap.Bool("success", actionEvent.Success))
	return Response{OK: true, ContainerID: actionEvent.ContainerID, Success: actionEvent.Success}
}

func (s *Server) cmdStatus(req Request) Response {
	if req.ContainerID == "" {
		return Response{OK: false, Error: "container_id required for status"}
	}
	info, exempt, found := s.ctrl.Status(req.ContainerID)
	if !found {
		return Response{OK: false, Error: fmt.Sprintf("container %q not found or ambiguous", req.ContainerID)}
	}
	return Response{OK: true, ContainerID: info.ID, Exempt: exempt}
}

func (s *Server) cmdList() Response {
	infos := s.ctrl.ListCached()
	out := make([]containerJSON, 0, len(infos))
	for _, info := range infos {
		out = append(out, containerJSON{ID: info.ID, Name: info.Name, Image: info.Image, State: info.State})
	}
	return Response{OK: true, Containers: out}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

func parseActionKind(name string) (policy.ActionKind, error) {
	switch name {
	case "pause", "":
		return policy.ActionPause, nil
	case "stop":
		return policy.ActionStop, nil
	case "network_disconnect":
		return policy.ActionNetworkDisconnect, nil
	default:
		return policy.ActionPause, fmt.Errorf("unknown action %q (valid: pause stop network_disconnect)", name)
	}
}
