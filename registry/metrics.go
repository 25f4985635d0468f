package registry

import "time"

// Metrics are the running statistics of one agent.
type Metrics struct {
	Executions    int           `json:"executions"`
	Errors        int           `json:"errors"`
	AvgConfidence float64       `json:"avgConfidence"` // successful calls only
	AvgLatency    time.Duration `json:"avgLatency"`
	SuccessRate   float64       `json:"successRate"` // percent
	LastExecution time.Time     `json:"lastExecution"`
}

// Execution is one observation fed to RecordExecution.
type Execution struct {
	Confidence int
	Latency    time.Duration
	Success    bool
	At         time.Time
}

// apply folds e into m. Callers hold the owning entry's lock.
func (m *Metrics) apply(e Execution) {
	m.Executions++
	if !e.Success {
		m.Errors++
	}

	successes := m.Executions - m.Errors
	if e.Success {
		m.AvgConfidence += (float64(e.Confidence) - m.AvgConfidence) / float64(successes)
	}

	m.AvgLatency += (e.Latency - m.AvgLatency) / time.Duration(m.Executions)
	m.SuccessRate = float64(successes) / float64(m.Executions) * 100

	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	m.LastExecution = at
}
