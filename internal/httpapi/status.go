package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/gaspardpetit/qscore/internal/logx"
	"github.com/gaspardpetit/qscore/internal/serverstate"
)

// Status is the body of GET /status.
type Status struct {
	State        serverstate.State `json:"state"`
	Version      string            `json:"version,omitempty"`
	Gate         GateStatus        `json:"gate"`
	Connections  int64             `json:"connections"`
	WebSockets   int64             `json:"websockets"`
	HTTPRequests int64             `json:"http_requests"`
	Process      *ProcessStatus    `json:"process,omitempty"`
}

type GateStatus struct {
	Exclusive bool  `json:"exclusive"`
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
}

type ProcessStatus struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

// Snapshot returns the current status.
func (a *API) Snapshot() Status {
	g := a.disp.Gate()
	st := Status{
		State:        serverstate.Get(),
		Version:      a.opts.Version,
		Gate:         GateStatus{Exclusive: g.Exclusive(), Waiting: g.Waiting(), Active: g.Active()},
		WebSockets:   a.sockets.Load(),
		HTTPRequests: a.requests.Load(),
	}
	if a.opts.Conns != nil {
		st.Connections = a.opts.Conns.ActiveConnections()
	}
	ps, err := processStatus()
	if err != nil {
		logx.Log.Debug().Err(err).Msg("process stats unavailable")
	} else {
		st.Process = ps
	}
	return st
}

func processStatus() (*ProcessStatus, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return nil, err
	}
	ps := &ProcessStatus{PID: p.Pid, RSSBytes: mem.RSS, Goroutines: runtime.NumGoroutine()}
	if cpu, err := p.CPUPercent(); err == nil {
		ps.CPUPercent = cpu
	}
	if n, err := p.NumThreads(); err == nil {
		ps.Threads = n
	}
	return ps, nil
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.Snapshot()); err != nil {
		logx.Log.Error().Err(err).Msg("encode status")
	}
}
