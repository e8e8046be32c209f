package store

import (
	"context"
	"time"
)

// SeenAndRemember atomically records (apiKey, nonce) if it hasn't been
// seen before and reports whether this call is the first to see it
// (spec §4.2). A replayed request makes `fresh=false` with no error.
func (c *Client) SeenAndRemember(ctx context.Context, apiKey, nonce string, now time.Time, window time.Duration) (fresh bool, err error) {
	const query = `
		INSERT INTO used_nonces (api_key, nonce, used_at, expiry)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (api_key, nonce) DO NOTHING`

	result, err := c.db.ExecContext(ctx, query, apiKey, nonce, now, now.Add(window))
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// EvictExpiredNonces drops used-nonce rows whose expiry has passed
// (spec §4.2 "entries older than 5 minutes may be dropped").
func (c *Client) EvictExpiredNonces(ctx context.Context, now time.Time) (int64, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM used_nonces WHERE expiry <= $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
