package manager

import (
	"sort"
	"time"

	"inferd/internal/backend"
	"inferd/internal/model"
	"inferd/pkg/types"
)

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		MaxLoaded:      m.maxLoadedModels,
		LastError:      m.err,
		UptimeSeconds:  int64(now.Sub(m.startTime) / time.Second),
		ServerTimeUnix: now.Unix(),
		EvictionsTotal: m.evictionsTotal,
		LoadsTotal:     m.loadsTotal,
	}
	resp.Instances = make([]types.InstanceStatus, 0, len(m.instances))
	warmups := 0
	draining := 0
	for _, inst := range m.instances {
		st := inst.Model.State()
		if st == model.Downloading || st == model.Loading {
			warmups++
		}
		state := st.String()
		if inst.State == StateDraining {
			draining++
			state = string(StateDraining)
		}
		sel := inst.Model.Selection()
		resp.Instances = append(resp.Instances, types.InstanceStatus{
			ModelName:     inst.Name,
			Family:        inst.Family,
			State:         state,
			Backends:      backend.Names(sel.Backends),
			Runtime:       string(inst.Model.Runtime()),
			LastUsed:      inst.LastUsed.Unix(),
			EstMemMB:      inst.EstMemMB,
			QueueLen:      len(inst.queueCh),
			Inflight:      len(inst.genCh),
			MaxQueueDepth: cap(inst.queueCh),
		})
	}
	sort.Slice(resp.Instances, func(i, j int) bool {
		a, b := resp.Instances[i], resp.Instances[j]
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		return a.ModelName < b.ModelName
	})
	resp.WarmupsInProgress = warmups
	resp.DrainingCount = draining
	return resp
}
