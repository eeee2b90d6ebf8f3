package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/autopeerd/autopeerd/pkg/logger"
)

// Outcome values for an audit Event.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Event is a single audit record: one peering lifecycle transition.
type Event struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	ASN       uint32    `json:"asn,omitempty"`
	Operation string    `json:"operation"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
}

// Auditor logs Events as structured JSON through the process logger.
// The zero value is ready to use.
type Auditor struct{}

// NewAuditor constructs an Auditor.
func NewAuditor() *Auditor {
	return &Auditor{}
}

// Record logs a single lifecycle transition.
func (a *Auditor) Record(asn uint32, operation, from, to, outcome, detail string) {
	if a == nil {
		return
	}
	event := Event{
		ID:        uuid.NewString(),
		Time:      time.Now(),
		ASN:       asn,
		Operation: operation,
		From:      from,
		To:        to,
		Outcome:   outcome,
		Detail:    detail,
	}
	a.log(event)
}

func (*Auditor) log(event Event) {
	if eventJSON, err := json.Marshal(event); err == nil {
		logger.Info(string(eventJSON))
	} else {
		logger.Errorf("failed to marshal audit event: %v", err)
	}
}
