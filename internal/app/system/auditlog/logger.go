// internal/app/system/auditlog/logger.go
package auditlog

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - ExternalID / externalID / external_id: The stable identifier asserted by the identity provider

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/stratawiki/internal/app/store/audit"
	"github.com/dalemusser/stratawiki/internal/app/system/network"
	"github.com/dalemusser/stratawiki/internal/app/system/requestid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Policy values for each audit category.
const (
	PolicyAll = "all" // MongoDB + zap
	PolicyDB  = "db"  // MongoDB only
	PolicyLog = "log" // zap only
	PolicyOff = "off" // disabled
)

// ValidPolicy reports whether s is a known policy value.
func ValidPolicy(s string) bool {
	switch s {
	case PolicyAll, PolicyDB, PolicyLog, PolicyOff:
		return true
	}
	return false
}

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for session events (issued, revoked).
	Auth string
	// Admin controls logging for role changes.
	Admin string
	// Content controls logging for page and menu mutations.
	Content string
}

// Store persists audit events.
type Store interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger provides convenience methods for logging audit events.
// It logs to MongoDB (via Store) and structured logs (via zap) per category.
type Logger struct {
	store  Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.TargetID != nil {
		fields = append(fields, zap.String("target_id", event.TargetID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

func (l *Logger) setting(category string) string {
	switch category {
	case audit.CategoryAuth:
		return l.config.Auth
	case audit.CategoryAdmin:
		return l.config.Admin
	case audit.CategoryContent:
		return l.config.Content
	default:
		return PolicyAll
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// Logging destination is controlled by config: "all", "db", "log", or "off".
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	setting := l.setting(event.Category)
	if setting == PolicyOff {
		return
	}

	if setting == PolicyAll || setting == PolicyLog {
		l.logToZap(event)
	}

	if (setting == PolicyAll || setting == PolicyDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// fromRequest fills the request context fields of an event.
func fromRequest(r *http.Request, event audit.Event) audit.Event {
	event.IP = network.GetClientIP(r)
	event.UserAgent = network.UserAgent(r)
	event.RequestID = requestid.Get(r)
	return event
}

// --- Session Events ---

// SessionIssued logs a successful login handed over by the identity broker.
func (l *Logger) SessionIssued(ctx context.Context, r *http.Request, userID primitive.ObjectID, externalID, role string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventSessionIssued,
		UserID:    &userID,
		Success:   true,
		Details: map[string]string{
			"external_id": externalID,
			"role":        role,
		},
	}))
}

// SessionRevoked logs a logout.
func (l *Logger) SessionRevoked(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventSessionRevoked,
		UserID:    &userID,
		Success:   true,
	}))
}

// SessionsRevokedAll logs a sign-out of every session of a user.
func (l *Logger) SessionsRevokedAll(ctx context.Context, r *http.Request, userID primitive.ObjectID, count int64) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventSessionsRevokedAll,
		UserID:    &userID,
		Success:   true,
		Details: map[string]string{
			"count": strconv.FormatInt(count, 10),
		},
	}))
}

// --- Admin Events ---

// RoleChanged logs an admin changing another user's role.
func (l *Logger) RoleChanged(ctx context.Context, r *http.Request, actorID, targetUserID primitive.ObjectID, oldRole, newRole string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventRoleChanged,
		UserID:    &targetUserID,
		ActorID:   &actorID,
		Success:   true,
		Details: map[string]string{
			"old_role": oldRole,
			"new_role": newRole,
		},
	}))
}

// RoleChangeDenied logs a rejected role change.
func (l *Logger) RoleChangeDenied(ctx context.Context, r *http.Request, actorID, targetUserID primitive.ObjectID, newRole, reason string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAdmin,
		EventType:     audit.EventRoleChangeDenied,
		UserID:        &targetUserID,
		ActorID:       &actorID,
		Success:       false,
		FailureReason: reason,
		Details: map[string]string{
			"new_role": newRole,
		},
	}))
}

// --- Content Events ---

// ContentChanged logs a page or menu mutation. eventType is one of the
// audit.EventPage* or audit.EventMenu* constants.
func (l *Logger) ContentChanged(ctx context.Context, r *http.Request, eventType string, actorID, targetID primitive.ObjectID, details map[string]string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryContent,
		EventType: eventType,
		ActorID:   &actorID,
		TargetID:  &targetID,
		Success:   true,
		Details:   details,
	}))
}
