package output

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/marmos91/lockstep/internal/cli/timeutil"
	"github.com/marmos91/lockstep/pkg/coordinator"
)

// SessionList renders registered sessions as a table. It marshals as the
// plain session slice for JSON and YAML.
type SessionList struct {
	Sessions []coordinator.SessionInfo
	Now      time.Time
}

// MarshalJSON encodes the session slice.
func (l SessionList) MarshalJSON() ([]byte, error) {
	if l.Sessions == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.Sessions)
}

// MarshalYAML encodes the session slice.
func (l SessionList) MarshalYAML() (any, error) {
	return l.Sessions, nil
}

// Headers implements TableRenderer.
func (l SessionList) Headers() []string {
	return []string{"Client", "Sequence", "State", "Acked", "Connected", "Last Ack", "ID"}
}

// Rows implements TableRenderer.
func (l SessionList) Rows() [][]string {
	now := l.Now
	if now.IsZero() {
		now = time.Now()
	}
	rows := make([][]string, 0, len(l.Sessions))
	for _, s := range l.Sessions {
		rows = append(rows, []string{
			s.Client,
			strconv.FormatUint(s.Sequence, 10),
			s.State,
			strconv.FormatBool(s.Acknowledged),
			timeutil.Since(s.ConnectedAt, now),
			timeutil.Since(s.LastAckAt, now),
			s.ID,
		})
	}
	return rows
}

// StatusPairs flattens a coordinator snapshot into key-value rows.
func StatusPairs(s coordinator.Status) [][2]string {
	last := s.LastCycle
	lastCycle := "-"
	if last.Cycle > 0 {
		lastCycle = fmt.Sprintf("#%d %s, %d/%d arrived, %d released, wait %s, delay %s",
			last.Cycle, last.Outcome, last.Arrived, last.Expected, last.Released,
			last.Wait.Round(time.Millisecond), last.Delay.Round(time.Millisecond))
		if last.Client != "" {
			lastCycle += ", client " + last.Client
		}
	}

	return [][2]string{
		{"Running", strconv.FormatBool(s.Running)},
		{"Cycle", strconv.FormatUint(s.Cycle, 10)},
		{"Expected", strconv.Itoa(s.Expected)},
		{"Sessions", strconv.Itoa(s.Sessions)},
		{"Queue", fmt.Sprintf("%d/%d", s.QueueLen, s.QueueCap)},
		{"Last cycle", lastCycle},
		{"Poll interval", s.Config.PollInterval},
		{"Max send delay", s.Config.MaxSendDelay},
		{"Ack timeout", s.Config.AckTimeout},
		{"Arrival timeout", s.Config.ArrivalTimeout},
	}
}

// PrintStatus writes a coordinator snapshot in the printer's format.
func (p *Printer) PrintStatus(s coordinator.Status) error {
	if p.format == FormatTable {
		return SimpleTable(p.out, StatusPairs(s))
	}
	return p.Print(s)
}
