package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

const statusDialTimeout = 3 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether ironpostd is running and its operator socket is responsive",
	RunE:  runStatus,
}

// operatorResponse mirrors internal/containerguard/operator.Response's
// wire shape; the CLI only needs the fields status/list use.
type operatorResponse struct {
	OK         bool `json:"ok"`
	Error      string `json:"error,omitempty"`
	Containers []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Image string `json:"image"`
		State string `json:"state"`
	} `json:"containers,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.General.PIDFile); err != nil {
		if os.IsNotExist(err) {
			return reportStatus(false, 0, "daemon not running (no pid file at "+cfg.General.PIDFile+")")
		}
		return ironerr.Wrap(ironerr.KindInternal, "stat pid file", err).WithPath(cfg.General.PIDFile)
	}

	if cfg.General.OperatorSocketPath == "" {
		return reportStatus(true, 0, "daemon running (operator socket disabled, container count unavailable)")
	}

	resp, err := queryOperatorList(cfg.General.OperatorSocketPath)
	if err != nil {
		return reportStatus(true, 0, "daemon running, operator socket unreachable: "+err.Error())
	}
	return reportStatus(true, len(resp.Containers), "daemon running")
}

func queryOperatorList(socketPath string) (*operatorResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, statusDialTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(statusDialTimeout))
	if _, err := conn.Write([]byte(`{"cmd":"list"}` + "\n")); err != nil {
		return nil, err
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return nil, err
	}

	var resp operatorResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("decode operator response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("operator: %s", resp.Error)
	}
	return &resp, nil
}

func reportStatus(running bool, containerCount int, message string) error {
	format, err := ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}

	if format == OutputFormatJSON {
		if err := printJSON(struct {
			Running        bool   `json:"running"`
			ContainerCount int    `json:"container_count"`
			Message        string `json:"message"`
		}{running, containerCount, message}); err != nil {
			return err
		}
		if !running {
			return ironerr.New(ironerr.KindUnreachable, message)
		}
		return nil
	}

	state := "STOPPED"
	if running {
		state = "RUNNING"
	}
	fmt.Printf("%-8s %s\n", state, message)
	if running && containerCount > 0 {
		fmt.Printf("%d container(s) tracked by container guard\n", containerCount)
	}
	if !running {
		return ironerr.New(ironerr.KindUnreachable, message)
	}
	return nil
}
