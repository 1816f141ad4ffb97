package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is one security-relevant register action.
type AuditEntry struct {
	Action    string
	ActorID   *int64 // nil for unauthenticated kiosk attempts
	SubjectID *int64
	IP        net.IP
	UserAgent string
	Meta      map[string]any
	At        time.Time
}

// AuditSink persists audit entries. Failures are logged and never fail the request.
type AuditSink interface {
	InsertAudit(ctx context.Context, e AuditEntry) error
}

// PostgresAudit writes to <schema>.audit_log (see db/schema.sql).
type PostgresAudit struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresAudit returns an AuditSink on pool. The caller owns the pool.
func NewPostgresAudit(pool *pgxpool.Pool, schema string) (*PostgresAudit, error) {
	schema = strings.TrimSpace(schema)
	if pool == nil || schema == "" {
		return nil, errors.New("attendance api: audit needs a pool and schema")
	}
	return &PostgresAudit{pool: pool, table: pgx.Identifier{schema, "audit_log"}.Sanitize()}, nil
}

func (a *PostgresAudit) InsertAudit(ctx context.Context, e AuditEntry) error {
	var ipVal any
	if e.IP != nil {
		ipVal = e.IP.String()
	}

	var metaVal *string
	if len(e.Meta) > 0 {
		if b, err := json.Marshal(e.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO `+a.table+` (
			action, actor_id, subject_id, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, e.Action, e.ActorID, e.SubjectID, e.At.UTC(), ipVal, trimOrNil(e.UserAgent), metaVal)
	return err
}

func (h *Handler) auditKioskDenied(r *http.Request, userID int64) {
	h.insertAudit(r, "attendance.kiosk.denied", nil, &userID, nil)
}

func (h *Handler) auditKioskRateLimited(r *http.Request, userID int64, key string, retryAfter time.Duration) {
	h.insertAudit(r, "attendance.kiosk.rate_limited", nil, &userID, map[string]any{
		"key":           key,
		"retry_after_s": int64(retryAfter.Seconds()),
	})
}

func (h *Handler) auditKioskSignIn(r *http.Request, userID int64, recordID string) {
	h.insertAudit(r, "attendance.kiosk.sign_in", &userID, &userID, map[string]any{
		"record_id": recordID,
	})
}

// auditOnBehalf records a staff member acting on someone else's visit.
func (h *Handler) auditOnBehalf(r *http.Request, action string, actorID, subjectID int64, recordID string) {
	if actorID == subjectID {
		return
	}
	h.insertAudit(r, action, &actorID, &subjectID, map[string]any{
		"record_id": recordID,
	})
}

func (h *Handler) auditBulk(r *http.Request, action string, actorID int64, total, succeeded int) {
	h.insertAudit(r, action, &actorID, nil, map[string]any{
		"total":     total,
		"succeeded": succeeded,
	})
}

func (h *Handler) insertAudit(r *http.Request, action string, actorID, subjectID *int64, meta map[string]any) {
	if h == nil || h.audit == nil {
		return
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	// The request may be finishing; the row should still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()

	err := h.audit.InsertAudit(ctx, AuditEntry{
		Action:    action,
		ActorID:   actorID,
		SubjectID: subjectID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: r.UserAgent(),
		Meta:      meta,
		At:        h.clock.Now(),
	})
	if err != nil {
		h.log.Error("attendance.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
