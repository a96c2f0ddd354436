package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/court-scheduler/internal/jobs"
)

const jobColumns = `id,kind,resource_id,desired_time,trigger_time,duration,recurrence_rule,status,attempts,last_error,created_at,updated_at,finished_at`

// JobRepo implements jobs.Store.
type JobRepo struct {
	db  *DB
	now func() time.Time
}

func NewJobRepo(d *DB) *JobRepo {
	return &JobRepo{db: d, now: time.Now}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (jobs.Job, error) {
	var (
		j                               jobs.Job
		kind, status                    string
		desired, trig, created, updated int64
		finished                        sql.NullInt64
	)
	if err := row.Scan(&j.ID, &kind, &j.ResourceID, &desired, &trig, &j.Duration, &j.RecurrenceRule,
		&status, &j.Attempts, &j.LastError, &created, &updated, &finished); err != nil {
		return jobs.Job{}, err
	}
	j.Kind = jobs.Kind(kind)
	j.Status = jobs.Status(status)
	j.DesiredTime = fromMillis(desired)
	j.TriggerTime = fromMillis(trig)
	j.CreatedAt = fromMillis(created)
	j.UpdatedAt = fromMillis(updated)
	if finished.Valid {
		t := fromMillis(finished.Int64)
		j.FinishedAt = &t
	}
	return j, nil
}

func (r *JobRepo) query(ctx context.Context, op, q string, args ...any) ([]jobs.Job, error) {
	rows, err := r.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, jobs.Unavailable(err, op)
	}
	defer rows.Close()

	var out []jobs.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, jobs.Unavailable(err, op)
		}
		out = append(out, j)
	}
	return out, jobs.Unavailable(rows.Err(), op)
}

func (r *JobRepo) InsertIfAbsent(ctx context.Context, j jobs.Job) (jobs.Job, bool, error) {
	if err := j.Validate(); err != nil {
		return jobs.Job{}, false, err
	}
	now := r.now().UTC()
	res, err := r.db.sql.ExecContext(ctx, `
INSERT INTO jobs(id,kind,resource_id,desired_time,trigger_time,duration,recurrence_rule,status,dedup_key,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,'pending',?,?,?)
ON CONFLICT(dedup_key) DO NOTHING`,
		j.ID, string(j.Kind), j.ResourceID, millis(j.DesiredTime), millis(j.TriggerTime), j.Duration, j.RecurrenceRule,
		j.DedupKey(), millis(now), millis(now))
	if err != nil {
		return jobs.Job{}, false, jobs.Unavailable(err, "insert job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return jobs.Job{}, false, jobs.Unavailable(err, "insert job")
	}

	row := r.db.sql.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE dedup_key=?`, j.DedupKey())
	stored, err := scanJob(row)
	if err != nil {
		return jobs.Job{}, false, jobs.Unavailable(err, "read inserted job")
	}
	return stored, n == 1, nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (jobs.Job, error) {
	j, err := scanJob(r.db.sql.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Job{}, jobs.ResolveMiss(id, "", false)
	}
	if err != nil {
		return jobs.Job{}, jobs.Unavailable(err, "get job")
	}
	return j, nil
}

func (r *JobRepo) ListPending(ctx context.Context) ([]jobs.Job, error) {
	return r.query(ctx, "list pending", `
SELECT `+jobColumns+` FROM jobs
WHERE status='pending'
ORDER BY trigger_time ASC, id ASC`)
}

func (r *JobRepo) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]jobs.Job, error) {
	return r.query(ctx, "list pending before", `
SELECT `+jobColumns+` FROM jobs
WHERE status='pending' AND trigger_time < ?
ORDER BY trigger_time ASC, id ASC`, millis(cutoff))
}

func (r *JobRepo) List(ctx context.Context, f jobs.Filter) ([]jobs.Job, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, "list jobs", `
SELECT `+jobColumns+` FROM jobs
WHERE (?1 = '' OR status = ?1) AND (?2 = '' OR resource_id = ?2)
ORDER BY desired_time DESC, id ASC
LIMIT ?3 OFFSET ?4`, string(f.Status), f.ResourceID, f.Limit, f.Offset)
}

func (r *JobRepo) ListUpcoming(ctx context.Context, from, to time.Time) ([]jobs.Job, error) {
	return r.query(ctx, "list upcoming", `
SELECT `+jobColumns+` FROM jobs
WHERE status='pending' AND desired_time >= ? AND desired_time < ?
ORDER BY desired_time ASC, id ASC`, millis(from), millis(to))
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id string, next, expected jobs.Status, out jobs.Outcome) error {
	if err := jobs.CheckTransition(next, expected); err != nil {
		return err
	}
	now := millis(r.now())
	res, err := r.db.sql.ExecContext(ctx, `
UPDATE jobs SET status=?, attempts=?, last_error=?, updated_at=?, finished_at=?
WHERE id=? AND status=?`,
		string(next), out.Attempts, out.Error, now, now, id, string(expected))
	if err != nil {
		return jobs.Unavailable(err, "update job status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return jobs.Unavailable(err, "update job status")
	}
	if n == 1 {
		return nil
	}
	return r.miss(ctx, id, jobs.ResolveMiss)
}

func (r *JobRepo) Cancel(ctx context.Context, id string) (jobs.Job, error) {
	now := millis(r.now())
	res, err := r.db.sql.ExecContext(ctx, `
UPDATE jobs SET status='cancelled', updated_at=?, finished_at=?
WHERE id=? AND status='pending'`, now, now, id)
	if err != nil {
		return jobs.Job{}, jobs.Unavailable(err, "cancel job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return jobs.Job{}, jobs.Unavailable(err, "cancel job")
	}
	if n == 0 {
		return jobs.Job{}, r.miss(ctx, id, jobs.CancelMiss)
	}
	return r.Get(ctx, id)
}

// miss re-reads a row after a zero-row update and lets resolve pick the error.
func (r *JobRepo) miss(ctx context.Context, id string, resolve func(string, jobs.Status, bool) error) error {
	var status string
	err := r.db.sql.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id=?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return resolve(id, "", false)
	}
	if err != nil {
		return jobs.Unavailable(err, "reread job")
	}
	return resolve(id, jobs.Status(status), true)
}

func (r *JobRepo) CountByStatus(ctx context.Context) (map[jobs.Status]int, error) {
	rows, err := r.db.sql.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, jobs.Unavailable(err, "count jobs")
	}
	defer rows.Close()

	out := make(map[jobs.Status]int, 4)
	for _, s := range jobs.Statuses() {
		out[s] = 0
	}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, jobs.Unavailable(err, "count jobs")
		}
		out[jobs.Status(s)] = n
	}
	return out, jobs.Unavailable(rows.Err(), "count jobs")
}

func (r *JobRepo) NextPending(ctx context.Context) (jobs.Job, bool, error) {
	j, err := scanJob(r.db.sql.QueryRowContext(ctx, `
SELECT `+jobColumns+` FROM jobs
WHERE status='pending'
ORDER BY desired_time ASC, id ASC
LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Job{}, false, nil
	}
	if err != nil {
		return jobs.Job{}, false, jobs.Unavailable(err, "next pending")
	}
	return j, true, nil
}

func (r *JobRepo) Anchor(ctx context.Context, resourceID, rule string, proposed time.Time) (time.Time, error) {
	if _, err := r.db.sql.ExecContext(ctx, `
INSERT INTO recurrence_anchors(resource_id, rule, anchor) VALUES (?,?,?)
ON CONFLICT(resource_id, rule) DO NOTHING`, resourceID, rule, millis(proposed)); err != nil {
		return time.Time{}, jobs.Unavailable(err, "record anchor")
	}
	var ms int64
	err := r.db.sql.QueryRowContext(ctx, `SELECT anchor FROM recurrence_anchors WHERE resource_id=? AND rule=?`,
		resourceID, rule).Scan(&ms)
	if err != nil {
		return time.Time{}, jobs.Unavailable(err, "read anchor")
	}
	return fromMillis(ms), nil
}

func (r *JobRepo) Ping(ctx context.Context) error {
	return jobs.Unavailable(r.db.Ping(ctx), "ping")
}

func (r *JobRepo) Close() error { return r.db.Close() }
