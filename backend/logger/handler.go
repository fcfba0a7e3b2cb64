package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/PhilHem/gamepanel/backend/models"

	"gorm.io/gorm"
)

// DBHandler writes every record as JSON to an output stream and mirrors it
// into the log_entries table for the admin log viewer.
type DBHandler struct {
	db          *gorm.DB
	jsonHandler slog.Handler
	level       slog.Leveler
	attrs       []slog.Attr
}

type Options struct {
	Level  slog.Leveler
	Output io.Writer
}

func NewDBHandler(db *gorm.DB, opts *Options) *DBHandler {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &DBHandler{
		db:          db,
		jsonHandler: slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{Level: opts.Level}),
		level:       opts.Level,
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Unknown names fall back to info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func extractUserID(v slog.Value) uint {
	switch v.Kind() {
	case slog.KindInt64:
		if v.Int64() > 0 {
			return uint(v.Int64())
		}
	case slog.KindUint64:
		return uint(v.Uint64())
	}
	return 0
}

func (h *DBHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *DBHandler) Handle(ctx context.Context, r slog.Record) error {
	requestID := RequestIDFrom(ctx)
	if requestID != "" {
		r.AddAttrs(slog.String("request_id", requestID))
	}
	_ = h.jsonHandler.Handle(ctx, r)

	entry := models.LogEntry{
		CreatedAt: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		RequestID: requestID,
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	attrs := make(map[string]any)
	collect := func(a slog.Attr) bool {
		switch a.Key {
		case "source":
			entry.Source = a.Value.String()
		case "user_id":
			if id := extractUserID(a.Value); id > 0 {
				entry.UserID = &id
			}
		case "alert":
			entry.Alert = a.Value.Kind() == slog.KindBool && a.Value.Bool()
		case "request_id":
		default:
			attrs[a.Key] = a.Value.Any()
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	if len(attrs) > 0 {
		b, _ := json.Marshal(attrs)
		entry.Data = string(b)
	}

	return h.db.Create(&entry).Error
}

func (h *DBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &DBHandler{
		db:          h.db,
		jsonHandler: h.jsonHandler.WithAttrs(attrs),
		level:       h.level,
		attrs:       newAttrs,
	}
}

func (h *DBHandler) WithGroup(name string) slog.Handler {
	return h
}

// CleanupOldLogs deletes entries older than maxAge once an hour until ctx is
// done.
func CleanupOldLogs(ctx context.Context, db *gorm.DB, maxAge time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		if n, err := PurgeBefore(ctx, db, time.Now().Add(-maxAge)); err != nil {
			slog.Warn("log cleanup failed", "source", "logger", "error", err.Error())
		} else if n > 0 {
			slog.Info("old logs purged", "source", "logger", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PurgeBefore deletes entries created before cutoff.
func PurgeBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.LogEntry{})
	return res.RowsAffected, res.Error
}
