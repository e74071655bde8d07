package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"nomisma-settlement/internal/observability"
	"nomisma-settlement/internal/verification"
)

// auditJob runs the invariant audit on a schedule and keeps the last result.
type auditJob struct {
	auditor *verification.Auditor
	metrics *observability.Metrics
	log     *zap.Logger
	clock   func() time.Time

	mu   sync.RWMutex
	last *auditResponse
}

type violationResponse struct {
	Check    string `json:"check"`
	Subject  string `json:"subject"`
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

type auditResponse struct {
	At         time.Time           `json:"at"`
	OK         bool                `json:"ok"`
	Error      string              `json:"error,omitempty"`
	Escrows    int                 `json:"escrows"`
	Tokens     int                 `json:"tokens"`
	Claims     int                 `json:"claims"`
	Pairings   int                 `json:"pairings"`
	Violations []violationResponse `json:"violations"`
}

func newAuditJob(auditor *verification.Auditor, metrics *observability.Metrics, log *zap.Logger) *auditJob {
	return &auditJob{auditor: auditor, metrics: metrics, log: log, clock: time.Now}
}

// Run audits once and records the outcome.
func (j *auditJob) Run(ctx context.Context) {
	at := j.clock()
	report, err := j.auditor.Audit(ctx)

	res := &auditResponse{At: at.UTC(), Violations: []violationResponse{}}
	if err != nil {
		j.log.Error("audit failed", zap.Error(err))
		j.metrics.RecordAudit(0, at.Unix(), err)
		res.Error = err.Error()
		j.store(res)
		return
	}

	res.OK = report.OK()
	res.Escrows = report.Escrows
	res.Tokens = report.Tokens
	res.Claims = report.Claims
	res.Pairings = report.Pairings
	for _, v := range report.Violations {
		j.log.Error("invariant violated", zap.String("violation", v.String()))
		res.Violations = append(res.Violations, violationResponse{
			Check:    v.Check,
			Subject:  v.Subject.Hex(),
			Field:    v.Field,
			Expected: v.Expected,
			Actual:   v.Actual,
		})
	}
	j.metrics.RecordAudit(len(report.Violations), at.Unix(), nil)
	j.log.Debug("audit completed",
		zap.Bool("ok", res.OK),
		zap.Int("escrows", res.Escrows),
		zap.Int("tokens", res.Tokens))
	j.store(res)
}

func (j *auditJob) store(res *auditResponse) {
	j.mu.Lock()
	j.last = res
	j.mu.Unlock()
}

// Last returns the most recent result, nil before the first run.
func (j *auditJob) Last() *auditResponse {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.last
}

func (a *api) handleAudit(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		a.writeJSON(w, http.StatusNotFound, errorResponse{Error: "audit disabled"})
		return
	}
	last := a.audit.Last()
	if last == nil {
		a.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no audit has completed yet"})
		return
	}
	a.writeJSON(w, http.StatusOK, last)
}
