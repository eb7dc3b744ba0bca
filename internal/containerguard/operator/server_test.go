package operator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerapi"
	"github.com/dongwonkwak/ironpost/internal/containerguard/policy"
	"github.com/dongwonkwak/ironpost/internal/events"
)

type fakeControl struct {
	exempted    map[string]bool
	containers  []dockerapi.ContainerInfo
	exemptErr   error
	isolateErr  error
	statusFound bool
	lastKind    policy.ActionKind
}

func (f *fakeControl) Exempt(containerID string) (dockerapi.ContainerInfo, error) {
	if f.exemptErr != nil {
		return dockerapi.ContainerInfo{}, f.exemptErr
	}
	if f.exempted == nil {
		f.exempted = make(map[string]bool)
	}
	f.exempted[containerID] = true
	return dockerapi.ContainerInfo{ID: containerID}, nil
}

func (f *fakeControl) Unexempt(containerID string) {
	delete(f.exempted, containerID)
}

func (f *fakeControl) Status(containerID string) (dockerapi.ContainerInfo, bool, bool) {
	if !f.statusFound {
		return dockerapi.ContainerInfo{}, false, false
	}
	return dockerapi.ContainerInfo{ID: containerID}, f.exempted[containerID], true
}

func (f *fakeControl) ListCached() []dockerapi.ContainerInfo {
	return f.containers
}

func (f *fakeControl) ManualIsolate(ctx context.Context, containerID string, kind policy.ActionKind) (events.ActionEvent, error) {
	f.lastKind = kind
	if f.isolateErr != nil {
		return events.ActionEvent{}, f.isolateErr
	}
	return events.ActionEvent{ContainerID: containerID, Success: true}, nil
}

func startTestServer(t *testing.T, ctrl *fakeControl) (string, func()) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "operator.sock")
	srv := NewServer(socketPath, ctrl, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", socketPath); err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return socketPath, func() {
		cancel()
		<-errCh
	}
}

func sendRequest(t *testing.T, socketPath string, req Request) Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestServer_Exempt_Succeeds(t *testing.T) {
	ctrl := &fakeControl{}
	socketPath, stop := startTestServer(t, ctrl)
	defer stop()

	resp := sendRequest(t, socketPath, Request{Cmd: "exempt", ContainerID: "c1"})
	if !resp.OK || !resp.Exempt || resp.ContainerID != "c1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestServer_Exempt_RequiresContainerID(t *testing.T) {
	ctrl := &fakeControl{}
	socketPath, stop := startTestServer(t, ctrl)
	defer stop()

	resp := sendRequest(t, socketPath, Request{Cmd: "exempt"})
	if resp.OK {
		t.Error("expected missing container_id to fail")
	}
}

func TestServer_Exempt_PropagatesControlError(t *testing.T) {
	ctrl := &fakeControl{exemptErr: errors.New("not found or ambiguous")}
	socketPath, stop := startTestServer(t, ctrl)
	defer stop()

	resp := sendRequest(t, socketPath, Request{Cmd: "exempt", ContainerID: "c1"})
	if resp.OK || resp.Error == "" {
		t.Errorf("expected a propagated error, got %+v", resp)
	}
}

func TestServer_Unexempt_Succeeds(t *testing.T) {
	ctrl := &fakeControl{exempted: map[string]bool{"c1": true}}
	socketPath, stop := startTestServer(t, ctrl)
	defer stop()

	resp := sendRequest(t, socketPath, Request{Cmd: "unexempt", ContainerID: "c1"})
	if !resp.OK {
		t.Errorf("unexpected response: %+v", resp)
	}
	if ctrl.exempted["c1"] {
		t.Error("expected exemption to be removed")
	}
}

func TestServer_Isolate_DefaultsToPause(t *testing.T) {
	ctrl := &fakeControl{}
	socketPath, stop := startTestServer(t, ctrl)
	defer stop()

	resp := sendRequest(t, socketPath, Request{Cmd: "isolate", ContainerID: "c1"})
	if !resp.OK || !resp.Success {
		t.Errorf("unexpected response: %+v", resp)
	}
	if ctrl.lastKind != policy.ActionPause {
		t.Errorf("action kind = %v, want pause when no action is given", ctrl.lastKind)
	}
}

func TestServer_Isolate_RejectsUnknownAction(t *testing.T) {
	ctrl := &fakeControl{}
	socketPath, stop := startTestServer(t, ctrl)
	defer stop()

	resp := sendRequest(t, socketPath, Request{Cmd: "isolate", ContainerID: "c1", Action: "nuke"})
	if resp.OK {
		t.Error("expected an unknown action to be rejected")
	}
}

func TestServer_Status_NotFound(t *testing.T) {
	ctrl := &fakeControl{statusFound: false}
	socketPath, stop := startTestServer(t, ctrl)
	defer stop()

	resp := sendRequest(t, socketPath, Request{Cmd: "status", ContainerID: "c1"})
	if resp.OK {
		t.Error("expected status on an unknown container to fail")
	}
}

func TestServer_Status_Found(t *testing.T) {
	ctrl := &fakeControl{statusFound: true, exempted: map[string]bool{"c1": true}}
	socketPath, stop := startTestServer(t, ctrl)
	defer stop()

	resp := sendRequest(t, socketPath, Request{Cmd: "status", ContainerID: "c1"})
	if !resp.OK || !resp.Exempt {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestServer_List_ReturnsContainers(t *testing.T) {
	ctrl := &fakeControl{containers: []dockerapi.ContainerInfo{{ID: "c1", Name: "web"}, {ID: "c2", Name: "db"}}}
	socketPath, stop := startTestServer(t, ctrl)
	defer stop()

	resp := sendRequest(t, socketPath, Request{Cmd: "list"})
	if !resp.OK || len(resp.Containers) != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestServer_UnknownCommand(t *testing.T) {
	ctrl := &fakeControl{}
	socketPath, stop := startTestServer(t, ctrl)
	defer stop()

	resp := sendRequest(t, socketPath, Request{Cmd: "frobnicate"})
	if resp.OK {
		t.Error("expected an unknown command to fail")
	}
}

func TestServer_InvalidJSON_ReturnsError(t *testing.T) {
	ctrl := &fakeControl{}
	socketPath, stop := startTestServer(t, ctrl)
	defer stop()

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.OK {
		t.Error("expected invalid JSON to be rejected")
	}
}

func TestParseActionKind(t *testing.T) {
	cases := map[string]policy.ActionKind{
		"":                   policy.ActionPause,
		"pause":              policy.ActionPause,
		"stop":               policy.ActionStop,
		"network_disconnect": policy.ActionNetworkDisconnect,
	}
	for in, want := range cases {
		got, err := parseActionKind(in)
		if err != nil {
			t.Fatalf("parseActionKind(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("parseActionKind(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := parseActionKind("bogus"); err == nil {
		t.Error("expected an unknown action name to be rejected")
	}
}
