package manager

// evictOverLimit closes LRU idle instances until at most maxLoadedModels are
// loaded. keep is never evicted. Instances with in-flight, queued or pinned
// work are skipped, so the limit is a target rather than a hard cap.
func (m *Manager) evictOverLimit(keep string) {
	if m.maxLoadedModels <= 0 {
		return
	}
	for {
		m.mu.Lock()
		loaded := 0
		for _, inst := range m.instances {
			if inst.State == StateReady {
				loaded++
			}
		}
		if loaded <= m.maxLoadedModels {
			m.mu.Unlock()
			return
		}
		// Pick LRU idle instance (no in-flight and no queued requests)
		var lru *Instance
		for _, inst := range m.instances {
			if inst.Key == keep || inst.State != StateReady {
				continue
			}
			if inst.pending > 0 || len(inst.genCh) > 0 || len(inst.queueCh) > 0 {
				continue
			}
			if lru == nil || inst.LastUsed.Before(lru.LastUsed) {
				lru = inst
			}
		}
		if lru == nil {
			// nothing to evict
			m.mu.Unlock()
			return
		}
		delete(m.instances, lru.Key)
		m.evictionsTotal++
		m.mu.Unlock()

		if err := lru.Model.Close(); err != nil {
			m.log.Warn().Str("instance", lru.Key).Err(err).Msg("close evicted model")
		}
		m.metrics.evicted(lru.Family)
		m.log.Info().Str("instance", lru.Key).Int("est_mem_mb", lru.EstMemMB).Msg("manager event=evict")
		m.publisher.Publish(Event{Name: "evict", ModelID: lru.Key, Fields: map[string]any{"est_mem_mb": lru.EstMemMB}})
	}
}
