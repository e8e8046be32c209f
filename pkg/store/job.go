package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// ErrNotFound is returned when a request_id has no matching row.
var ErrNotFound = errors.New("store: not found")

// RequestMeta carries the request attributes Ingress captures alongside
// the payload (spec §3).
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// CreateRequest inserts an Application Request and its Queue Entry in one
// transaction (spec §4.3, §4.1 "atomically: insert Nonce, insert
// Application Request ..., insert Queue Entry").
func (c *Client) CreateRequest(ctx context.Context, payload models.ApplicationPayload, meta RequestMeta, now time.Time) (string, error) {
	requestID := uuid.NewString()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO applications (request_id, payload, dealer_id, client_ip, user_agent, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		requestID, payloadJSON, payload.Dealer.ID, meta.ClientIP, meta.UserAgent, models.StatusQueued, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert application: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue_entries (job_id, attempts, available_at)
		VALUES ($1, 0, $2)`,
		requestID, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return requestID, nil
}

// LoadRequest reads an Application Request by id.
func (c *Client) LoadRequest(ctx context.Context, requestID string) (*models.ApplicationRequest, error) {
	var (
		payloadJSON  []byte
		req          models.ApplicationRequest
		errorMessage sql.NullString
	)
	req.RequestID = requestID

	row := c.db.QueryRowContext(ctx, `
		SELECT payload, client_ip, user_agent, status, received_at, error_message
		FROM applications WHERE request_id = $1`, requestID)

	if err := row.Scan(&payloadJSON, &req.ClientIP, &req.UserAgent, &req.Status, &req.ReceivedAt, &errorMessage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load request: %w", err)
	}
	if err := json.Unmarshal(payloadJSON, &req.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	req.ErrorMessage = errorMessage.String
	return &req, nil
}

// MarkProcessing advances a request's status to processing once a
// Dispatcher worker reserves its Queue Entry (spec §3 "status advanced
// by Dispatcher"). Safe to call repeatedly across retried attempts.
func (c *Client) MarkProcessing(ctx context.Context, requestID string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE applications SET status = $1 WHERE request_id = $2 AND status != $3`,
		models.StatusProcessing, requestID, models.StatusDecided,
	)
	if err != nil {
		return fmt.Errorf("mark processing %s: %w", requestID, err)
	}
	return nil
}

// AppendStage writes a new, append-only stage record for one attempt
// (spec §3 invariants: "a replayed attempt writes a new record").
func (c *Client) AppendStage(ctx context.Context, rec models.StageRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO stage_records (request_id, stage, version, started_at, ended_at, duration_ms, output, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.RequestID, rec.Stage, rec.Version, rec.StartedAt, rec.EndedAt,
		rec.Duration.Milliseconds(), nullableJSON(rec.Output), nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("append stage %s: %w", rec.Stage, err)
	}
	return nil
}

// LatestStage returns the most recent record for (requestID, stage), or
// ErrNotFound if the stage never ran for this request.
func (c *Client) LatestStage(ctx context.Context, requestID string, stage models.StageName) (*models.StageRecord, error) {
	rec := models.StageRecord{RequestID: requestID, Stage: stage}
	var (
		durationMS int64
		output     []byte
		errStr     sql.NullString
	)
	row := c.db.QueryRowContext(ctx, `
		SELECT version, started_at, ended_at, duration_ms, output, error
		FROM stage_records
		WHERE request_id = $1 AND stage = $2
		ORDER BY id DESC LIMIT 1`, requestID, stage)

	if err := row.Scan(&rec.Version, &rec.StartedAt, &rec.EndedAt, &durationMS, &output, &errStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load stage %s: %w", stage, err)
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.Output = output
	rec.Error = errStr.String
	return &rec, nil
}

// Finalize marks a request terminal and dequeues it in one transaction
// (spec §3 "written exactly once under a transaction that also deletes
// the Queue Entry"). Exactly one of decision/failureReason is non-empty.
func (c *Client) Finalize(ctx context.Context, requestID string, decision *models.Decision, failureReason string, now time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if decision != nil {
		reasonsJSON, err := json.Marshal(decision.Reasons)
		if err != nil {
			return fmt.Errorf("marshal reasons: %w", err)
		}
		stipsJSON, err := json.Marshal(decision.Stipulations)
		if err != nil {
			return fmt.Errorf("marshal stipulations: %w", err)
		}
		timingJSON, err := json.Marshal(decision.Timing)
		if err != nil {
			return fmt.Errorf("marshal timing: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO decisions (request_id, final_decision, reasons, stipulations, policy_version, timing_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			requestID, decision.FinalDecision, reasonsJSON, stipsJSON, decision.PolicyVersion, timingJSON, now,
		)
		if err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE applications SET status = $1, decided_at = $2 WHERE request_id = $3`,
			models.StatusDecided, now, requestID,
		)
		if err != nil {
			return fmt.Errorf("update application status: %w", err)
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE applications SET status = $1, decided_at = $2, error_message = $3 WHERE request_id = $4`,
			models.StatusFailed, now, failureReason, requestID,
		)
		if err != nil {
			return fmt.Errorf("update application status: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE job_id = $1`, requestID); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}

	return tx.Commit()
}

// LoadDecision reads the terminal Decision for a request, if one exists.
func (c *Client) LoadDecision(ctx context.Context, requestID string) (*models.Decision, error) {
	var (
		d            models.Decision
		reasonsJSON  []byte
		stipsJSON    []byte
		timingJSON   []byte
	)
	row := c.db.QueryRowContext(ctx, `
		SELECT final_decision, reasons, stipulations, policy_version, timing_ms
		FROM decisions WHERE request_id = $1`, requestID)

	if err := row.Scan(&d.FinalDecision, &reasonsJSON, &stipsJSON, &d.PolicyVersion, &timingJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load decision: %w", err)
	}
	if err := json.Unmarshal(reasonsJSON, &d.Reasons); err != nil {
		return nil, fmt.Errorf("unmarshal reasons: %w", err)
	}
	if err := json.Unmarshal(stipsJSON, &d.Stipulations); err != nil {
		return nil, fmt.Errorf("unmarshal stipulations: %w", err)
	}
	if err := json.Unmarshal(timingJSON, &d.Timing); err != nil {
		return nil, fmt.Errorf("unmarshal timing: %w", err)
	}
	return &d, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
