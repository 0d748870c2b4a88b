package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

// Entry describes one state change worth remembering.
type Entry struct {
	ProjectID   string
	EntityKind  string
	EntityID    string
	ActorID     string
	Action      string
	FromStatus  string
	ToStatus    string
	FromCurrent *bool
	ToCurrent   *bool
	Meta        map[string]any
}

// Recorder appends audit rows inside the caller's transaction. Recording is
// best effort: a failed append is logged locally and swallowed so it can
// never fail or roll back the primary operation.
type Recorder struct {
	Now    func() time.Time
	Logger *log.Logger
}

func (r Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Recorder) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

// Record appends one entry. It never returns an error.
func (r Recorder) Record(ctx context.Context, tx *sql.Tx, e Entry) {
	ts := r.now().UTC().Format(time.RFC3339)
	meta := ""
	if len(e.Meta) > 0 {
		data, err := json.Marshal(e.Meta)
		if err != nil {
			r.logger().Printf("audit: drop meta for %s/%s: %v", e.EntityKind, e.EntityID, err)
		} else {
			meta = string(data)
		}
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO audit_events(ts,project_id,entity_kind,entity_id,actor_id,action,
from_status,to_status,from_current,to_current,meta_json) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ts, nullable(e.ProjectID), e.EntityKind, nullable(e.EntityID), e.ActorID, e.Action,
		nullable(e.FromStatus), nullable(e.ToStatus), nullableBool(e.FromCurrent), nullableBool(e.ToCurrent), nullable(meta))
	if err != nil {
		r.logger().Printf("audit: append %s %s/%s failed: %v", e.Action, e.EntityKind, e.EntityID, err)
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableBool(v *bool) any {
	if v == nil {
		return nil
	}
	if *v {
		return 1
	}
	return 0
}
