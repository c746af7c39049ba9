package httpapi

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

type auditEntry struct {
	Time       time.Time `json:"time"`
	UserID     string    `json:"user_id,omitempty"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	Status     int       `json:"status"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    auditSink
}

type auditSink interface {
	Write(entry auditEntry) error
}

func newAuditLog(max int, sink auditSink) *auditLog {
	if max <= 0 {
		max = 200
	}
	return &auditLog{max: max, sink: sink}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		// Best-effort persistence; ignore errors to avoid impacting request flow.
		_ = l.sink.Write(entry)
	}
}

func (l *auditLog) list() []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]auditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *auditLog) listLimit(limit int) []auditEntry {
	if limit <= 0 || limit > l.max {
		limit = l.max
	}
	all := l.list()
	if len(all) <= limit {
		return all
	}
	return all[len(all)-limit:]
}

// dbAuditSink appends audit entries to the app_audit_log table.
type dbAuditSink struct {
	db *sql.DB
}

// newDBAuditSink returns a sink persisting audit entries to the database.
// Returns nil (no sink) when db is nil.
func newDBAuditSink(db *sql.DB) *dbAuditSink {
	if db == nil {
		return nil
	}
	return &dbAuditSink{db: db}
}

func (s *dbAuditSink) Write(entry auditEntry) error {
	if s == nil || s.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_audit_log (time, user_id, method, path, status, remote_addr, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.Time.UTC(), entry.UserID, entry.Method, entry.Path,
		entry.Status, entry.RemoteAddr, entry.UserAgent,
	)
	return err
}
