// Package postgres implements the job and credential stores on pgx.
package postgres

import (
	"context"
	"time"

	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/jobs"
)

const jobColumns = `id,kind,resource_id,desired_time,trigger_time,duration,recurrence_rule,status,attempts,last_error,created_at,updated_at,finished_at`

// JobRepo implements jobs.Store.
type JobRepo struct{ db *db.DB }

func NewJobRepo(d *db.DB) *JobRepo { return &JobRepo{db: d} }

func scanJob(row db.Row) (jobs.Job, error) {
	var j jobs.Job
	var kind, status string
	if err := row.Scan(&j.ID, &kind, &j.ResourceID, &j.DesiredTime, &j.TriggerTime, &j.Duration, &j.RecurrenceRule,
		&status, &j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt, &j.FinishedAt); err != nil {
		return jobs.Job{}, err
	}
	j.Kind = jobs.Kind(kind)
	j.Status = jobs.Status(status)
	j.DesiredTime = j.DesiredTime.UTC()
	j.TriggerTime = j.TriggerTime.UTC()
	if j.FinishedAt != nil {
		t := j.FinishedAt.UTC()
		j.FinishedAt = &t
	}
	return j, nil
}

func (r *JobRepo) query(ctx context.Context, op, sql string, args ...any) ([]jobs.Job, error) {
	rows, err := r.db.Query(ctx, sql, args...)
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
	n, err := r.db.Exec(ctx, `
INSERT INTO jobs(id,kind,resource_id,desired_time,trigger_time,duration,recurrence_rule,status,dedup_key)
VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',$8)
ON CONFLICT (dedup_key) DO NOTHING`,
		j.ID, string(j.Kind), j.ResourceID, j.DesiredTime.UTC(), j.TriggerTime.UTC(), j.Duration, j.RecurrenceRule, j.DedupKey())
	if err != nil {
		return jobs.Job{}, false, jobs.Unavailable(err, "insert job")
	}
	stored, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE dedup_key=$1`, j.DedupKey()))
	if err != nil {
		return jobs.Job{}, false, jobs.Unavailable(err, "read inserted job")
	}
	return stored, n == 1, nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (jobs.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id))
	if db.IsNotFound(err) {
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
WHERE status='pending' AND trigger_time < $1
ORDER BY trigger_time ASC, id ASC`, cutoff.UTC())
}

func (r *JobRepo) List(ctx context.Context, f jobs.Filter) ([]jobs.Job, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, "list jobs", `
SELECT `+jobColumns+` FROM jobs
WHERE ($1 = '' OR status = $1) AND ($2 = '' OR resource_id = $2)
ORDER BY desired_time DESC, id ASC
LIMIT $3 OFFSET $4`, string(f.Status), f.ResourceID, f.Limit, f.Offset)
}

func (r *JobRepo) ListUpcoming(ctx context.Context, from, to time.Time) ([]jobs.Job, error) {
	return r.query(ctx, "list upcoming", `
SELECT `+jobColumns+` FROM jobs
WHERE status='pending' AND desired_time >= $1 AND desired_time < $2
ORDER BY desired_time ASC, id ASC`, from.UTC(), to.UTC())
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id string, next, expected jobs.Status, out jobs.Outcome) error {
	if err := jobs.CheckTransition(next, expected); err != nil {
		return err
	}
	n, err := r.db.Exec(ctx, `
UPDATE jobs SET status=$2, attempts=$3, last_error=$4, updated_at=now(), finished_at=now()
WHERE id=$1 AND status=$5`, id, string(next), out.Attempts, out.Error, string(expected))
	if err != nil {
		return jobs.Unavailable(err, "update job status")
	}
	if n == 1 {
		return nil
	}
	return r.miss(ctx, id, jobs.ResolveMiss)
}

func (r *JobRepo) Cancel(ctx context.Context, id string) (jobs.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `
UPDATE jobs SET status='cancelled', updated_at=now(), finished_at=now()
WHERE id=$1 AND status='pending'
RETURNING `+jobColumns, id))
	if db.IsNotFound(err) {
		return jobs.Job{}, r.miss(ctx, id, jobs.CancelMiss)
	}
	if err != nil {
		return jobs.Job{}, jobs.Unavailable(err, "cancel job")
	}
	return j, nil
}

func (r *JobRepo) miss(ctx context.Context, id string, resolve func(string, jobs.Status, bool) error) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM jobs WHERE id=$1`, id).Scan(&status)
	if db.IsNotFound(err) {
		return resolve(id, "", false)
	}
	if err != nil {
		return jobs.Unavailable(err, "reread job")
	}
	return resolve(id, jobs.Status(status), true)
}

func (r *JobRepo) CountByStatus(ctx context.Context) (map[jobs.Status]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
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
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, jobs.Unavailable(err, "count jobs")
		}
		out[jobs.Status(s)] = int(n)
	}
	return out, jobs.Unavailable(rows.Err(), "count jobs")
}

func (r *JobRepo) NextPending(ctx context.Context) (jobs.Job, bool, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `
SELECT `+jobColumns+` FROM jobs
WHERE status='pending'
ORDER BY desired_time ASC, id ASC
LIMIT 1`))
	if db.IsNotFound(err) {
		return jobs.Job{}, false, nil
	}
	if err != nil {
		return jobs.Job{}, false, jobs.Unavailable(err, "next pending")
	}
	return j, true, nil
}

func (r *JobRepo) Anchor(ctx context.Context, resourceID, rule string, proposed time.Time) (time.Time, error) {
	if _, err := r.db.Exec(ctx, `
INSERT INTO recurrence_anchors(resource_id, rule, anchor) VALUES ($1,$2,$3)
ON CONFLICT (resource_id, rule) DO NOTHING`, resourceID, rule, proposed.UTC()); err != nil {
		return time.Time{}, jobs.Unavailable(err, "record anchor")
	}
	var anchor time.Time
	if err := r.db.QueryRow(ctx, `SELECT anchor FROM recurrence_anchors WHERE resource_id=$1 AND rule=$2`,
		resourceID, rule).Scan(&anchor); err != nil {
		return time.Time{}, jobs.Unavailable(err, "read anchor")
	}
	return anchor.UTC(), nil
}

func (r *JobRepo) Ping(ctx context.Context) error {
	return jobs.Unavailable(r.db.Ping(ctx), "ping")
}

func (r *JobRepo) Close() error {
	r.db.Close()
	return nil
}
