package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

func entityPath(entity string, parts ...string) (string, error) {
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return "", fmt.Errorf("entity: entity name is required")
	}
	var sb strings.Builder
	sb.WriteString("/v1/entity/")
	sb.WriteString(url.PathEscape(entity))
	for _, p := range parts {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(p))
	}
	return sb.String(), nil
}

// isNilData reports whether data would encode to an empty body or JSON null,
// including typed nils such as a nil map or a nil json.RawMessage.
func isNilData(data any) bool {
	if data == nil {
		return true
	}
	if raw, ok := data.(json.RawMessage); ok {
		raw = bytes.TrimSpace(raw)
		return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
	}
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func seqString(seq int64) string {
	return strconv.FormatInt(seq, 10)
}

// Get fetches one row by seq.
func (c *Client) Get(ctx context.Context, entity string, seq int64) (*Result, error) {
	path, err := entityPath(entity, seqString(seq))
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &Call{Method: http.MethodGet, Path: path})
}

// List fetches a page of rows.
func (c *Client) List(ctx context.Context, entity string, opts ListOptions) (*Result, error) {
	path, err := entityPath(entity, "list")
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &Call{Method: http.MethodGet, Path: path, Query: opts.params()})
}

// Count returns the number of rows of an entity.
func (c *Client) Count(ctx context.Context, entity string) (*Result, error) {
	path, err := entityPath(entity, "count")
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &Call{Method: http.MethodGet, Path: path})
}

// Query searches rows matching all filters. A nil filter is sent as [].
func (c *Client) Query(ctx context.Context, entity string, filter []Filter, opts ListOptions) (*Result, error) {
	path, err := entityPath(entity, "query")
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = []Filter{}
	}
	return c.Do(ctx, &Call{Method: http.MethodPost, Path: path, Query: opts.params(), Body: filter})
}

// Submit creates a row, or updates it when data carries a "seq". Inside a
// transaction the returned seq is a placeholder such as "$tx.0".
func (c *Client) Submit(ctx context.Context, entity string, data any, opts SubmitOptions) (*Result, error) {
	path, err := entityPath(entity, "submit")
	if err != nil {
		return nil, err
	}
	if isNilData(data) {
		return nil, fmt.Errorf("entity: submit data is required")
	}
	return c.Do(ctx, &Call{
		Method:        http.MethodPost,
		Path:          path,
		Body:          data,
		TransactionID: c.session.Attach(opts.TransactionID),
	})
}

// Delete removes a row. Hard deletes skip the soft-delete marker.
func (c *Client) Delete(ctx context.Context, entity string, seq int64, opts DeleteOptions) (*Result, error) {
	path, err := entityPath(entity, "delete", seqString(seq))
	if err != nil {
		return nil, err
	}
	var q Params
	if opts.Hard {
		q = q.Add("hard", "true")
	}
	return c.Do(ctx, &Call{
		Method:        http.MethodDelete,
		Path:          path,
		Query:         q,
		TransactionID: c.session.Attach(opts.TransactionID),
	})
}

// History lists the change history of a row.
func (c *Client) History(ctx context.Context, entity string, seq int64, opts HistoryOptions) (*Result, error) {
	path, err := entityPath(entity, "history", seqString(seq))
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &Call{Method: http.MethodGet, Path: path, Query: opts.params()})
}

// Rollback restores a row to the state recorded by one history entry.
func (c *Client) Rollback(ctx context.Context, entity string, historySeq int64) (*Result, error) {
	path, err := entityPath(entity, "rollback", seqString(historySeq))
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &Call{Method: http.MethodPost, Path: path})
}

// StartTransaction opens a server-side transaction and makes it the active
// one. Submits and deletes are queued on the server until commit.
func (c *Client) StartTransaction(ctx context.Context) (string, error) {
	if err := c.session.check(); err != nil {
		return "", err
	}
	res, err := c.Do(ctx, &Call{Method: http.MethodPost, Path: "/v1/transaction/start"})
	if err != nil {
		return "", err
	}
	id, err := res.TransactionID()
	if err != nil {
		return "", err
	}
	if err := c.session.Begin(id); err != nil {
		return "", err
	}
	return id, nil
}

// CommitTransaction applies the queued operations of transactionID, or of the
// active transaction when transactionID is empty.
func (c *Client) CommitTransaction(ctx context.Context, transactionID string) (*Result, error) {
	id, err := c.session.Take(transactionID)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &Call{Method: http.MethodPost, Path: "/v1/transaction/commit/" + url.PathEscape(id)})
}

// RollbackTransaction discards transactionID, or the active transaction when
// transactionID is empty.
func (c *Client) RollbackTransaction(ctx context.Context, transactionID string) (*Result, error) {
	id, err := c.session.Take(transactionID)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &Call{Method: http.MethodPost, Path: "/v1/transaction/rollback/" + url.PathEscape(id)})
}

// ActiveTransaction returns the active transaction id, if any.
func (c *Client) ActiveTransaction() (string, bool) {
	return c.session.Active()
}

// WithTransaction starts a transaction, runs fn and commits. When fn fails the
// transaction is rolled back and fn's error is returned; a rollback failure is
// logged, not returned.
func (c *Client) WithTransaction(ctx context.Context, fn func(ctx context.Context, txID string) error) (*Result, error) {
	txID, err := c.StartTransaction(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, txID); err != nil {
		if _, rbErr := c.RollbackTransaction(ctx, txID); rbErr != nil {
			c.logger.Sugar().Warnw("Transaction rollback failed", "transaction_id", txID, "error", rbErr)
		}
		return nil, err
	}
	return c.CommitTransaction(ctx, txID)
}
