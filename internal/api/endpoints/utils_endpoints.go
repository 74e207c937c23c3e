package endpoints

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

type UtilsEndpoints interface {
	Health(http.ResponseWriter, *http.Request) error
}

// RelayStats is the slice of the relay the health check reports on.
type RelayStats interface {
	RoomCount() int
	Uptime() time.Duration
}

type MemoryRes struct {
	RSS      uint64 `json:"rss"`
	HeapUsed uint64 `json:"heapUsed"`
}

type HealthRes struct {
	Status string    `json:"status"`
	Rooms  int       `json:"rooms"`
	Uptime float64   `json:"uptime"`
	Memory MemoryRes `json:"memory"`
}

type utilsEndpoints struct {
	stats RelayStats
	proc  *process.Process
}

func NewUtilsEndpoints(stats RelayStats) UtilsEndpoints {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		zap.L().Warn("process stats unavailable", zap.Error(err))
	}
	return &utilsEndpoints{stats: stats, proc: proc}
}

func (h *utilsEndpoints) Health(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleHealth,
	})
}

func (h *utilsEndpoints) handleHealth(w http.ResponseWriter, r *http.Request) error {
	return WriteJSON(w, http.StatusOK, HealthRes{
		Status: "ok",
		Rooms:  h.stats.RoomCount(),
		Uptime: h.stats.Uptime().Seconds(),
		Memory: h.memory(),
	})
}

func (h *utilsEndpoints) memory() MemoryRes {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	res := MemoryRes{HeapUsed: ms.HeapAlloc}

	if h.proc != nil {
		if info, err := h.proc.MemoryInfo(); err == nil {
			res.RSS = info.RSS
		} else {
			zap.L().Debug("rss lookup failed", zap.Error(err))
		}
	}
	return res
}
