package coordinator

import "time"

// SessionInfo is a point-in-time view of one session.
type SessionInfo struct {
	ID           string    `json:"id" yaml:"id"`
	Client       string    `json:"client" yaml:"client"`
	Sequence     uint64    `json:"sequence" yaml:"sequence"`
	State        string    `json:"state" yaml:"state"`
	Acknowledged bool      `json:"acknowledged" yaml:"acknowledged"`
	ConnectedAt  time.Time `json:"connected_at" yaml:"connected_at"`
	LastAckAt    time.Time `json:"last_ack_at,omitzero" yaml:"last_ack_at,omitempty"`
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Running   bool         `json:"running" yaml:"running"`
	Cycle     uint64       `json:"cycle" yaml:"cycle"`
	Expected  int          `json:"expected" yaml:"expected"`
	Sessions  int          `json:"sessions" yaml:"sessions"`
	QueueLen  int          `json:"queue_len" yaml:"queue_len"`
	QueueCap  int          `json:"queue_cap" yaml:"queue_cap"`
	LastCycle CycleReport  `json:"last_cycle" yaml:"last_cycle"`
	Config    StatusConfig `json:"config" yaml:"config"`
}

// StatusConfig echoes the timing configuration in effect.
type StatusConfig struct {
	PollInterval   string `json:"poll_interval" yaml:"poll_interval"`
	MaxSendDelay   string `json:"max_send_delay" yaml:"max_send_delay"`
	AckTimeout     string `json:"ack_timeout" yaml:"ack_timeout"`
	ArrivalTimeout string `json:"arrival_timeout" yaml:"arrival_timeout"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:           s.id,
		Client:       s.Key(),
		Sequence:     s.Sequence(),
		State:        s.State().String(),
		Acknowledged: s.Acknowledged(),
		ConnectedAt:  s.connectedAt,
		LastAckAt:    s.LastAckAt(),
	}
}

// Status returns a snapshot of the coordinator.
func (c *Coordinator) Status() Status {
	return Status{
		Running:   c.Running(),
		Cycle:     c.Cycle(),
		Expected:  c.Expected(),
		Sessions:  c.registry.Len(),
		QueueLen:  c.queue.Len(),
		QueueCap:  c.queue.Cap(),
		LastCycle: c.LastCycle(),
		Config: StatusConfig{
			PollInterval:   c.cfg.PollInterval.String(),
			MaxSendDelay:   c.cfg.MaxSendDelay.String(),
			AckTimeout:     c.cfg.AckTimeout.String(),
			ArrivalTimeout: c.cfg.ArrivalTimeout.String(),
		},
	}
}

// Sessions returns snapshots of every registered session in registration order.
func (c *Coordinator) Sessions() []SessionInfo {
	sessions := c.registry.Sessions()
	out := make([]SessionInfo, len(sessions))
	for i, s := range sessions {
		out[i] = s.Info()
	}
	return out
}

// Session returns the snapshot of the session registered under key.
func (c *Coordinator) Session(key string) (SessionInfo, bool) {
	s, ok := c.registry.Get(key)
	if !ok {
		return SessionInfo{}, false
	}
	return s.Info(), true
}
