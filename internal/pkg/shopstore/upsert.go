package shopstore

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// maxRepairAttempts bounds the payload-repair loop per candidate insert body.
// A persistently malformed schema surfaces as failure, never as an unbounded
// loop.
const maxRepairAttempts = 8

// outcome is the exit state of one rung of the upsert ladder.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeExhausted
	outcomeFatal
)

// upsertState tracks one UpsertRow call through the ladder: which candidate
// identifier column is in play, how many repairs were spent on the current
// body, and the per-call inference memo.
type upsertState struct {
	shopDomain string
	payload    map[string]interface{}
	inferMemo  map[string]interface{}
	lastErr    error
}

// UpsertRow writes the billing payload for a shop, tolerating schema drift in
// the remote store. Strategy order:
//
//  1. update an existing row by each candidate identifier column (legacy
//     schemas impose NOT NULL only on the insert path, so update goes first)
//  2. insert with a conflict target, repairing the body on unknown-column,
//     not-null, type-mismatch and missing-constraint errors
//  3. a minimal identifier+timestamp row, then patch the full payload in
//
// Returns false only after every strategy is exhausted; the last error is
// logged, never thrown, because a billing write must not block the merchant.
func (c *Client) UpsertRow(ctx context.Context, shopDomain string, payload map[string]interface{}) bool {
	if !c.Enabled() {
		log.Warnf("[ShopStore] upsert for %s skipped: store not configured", shopDomain)
		return false
	}

	st := &upsertState{
		shopDomain: shopDomain,
		payload:    payload,
		inferMemo:  map[string]interface{}{},
	}

	for _, column := range identifierColumns {
		switch c.tryUpdate(ctx, st, column) {
		case outcomeSuccess:
			return true
		case outcomeFatal:
			return c.fail(st)
		}
	}

	for _, column := range identifierColumns {
		switch c.tryInsert(ctx, st, column) {
		case outcomeSuccess:
			return true
		case outcomeFatal:
			return c.fail(st)
		}
	}

	if c.tryMinimalRow(ctx, st) {
		return true
	}
	return c.fail(st)
}

func (c *Client) fail(st *upsertState) bool {
	log.Errorf("[ShopStore] upsert for %s failed after all strategies: %v", st.shopDomain, st.lastErr)
	return false
}

// tryUpdate patches an existing row keyed by the given identifier column.
// Success requires at least one affected row; zero rows means the insert
// phase has to create it.
func (c *Client) tryUpdate(ctx context.Context, st *upsertState, column string) outcome {
	body := cloneWithoutIdentifiers(st.payload)
	if len(body) == 0 {
		return outcomeExhausted
	}

	for attempt := 0; attempt < maxRepairAttempts; attempt++ {
		n, storeErr, err := c.updateRows(ctx, c.table, column, identifierValue(column, st.shopDomain), body)
		if err != nil {
			st.lastErr = err
			return outcomeExhausted
		}
		if storeErr == nil {
			if n > 0 {
				return outcomeSuccess
			}
			return outcomeExhausted
		}

		st.lastErr = storeErr
		next := c.repairBody(ctx, st, body, column, storeErr)
		if next != outcomeSuccess {
			return next
		}
	}
	return outcomeExhausted
}

// tryInsert creates the row keyed by the given identifier column, repairing
// the body between attempts.
func (c *Client) tryInsert(ctx context.Context, st *upsertState, column string) outcome {
	body := cloneWithoutIdentifiers(st.payload)
	body[column] = identifierValue(column, st.shopDomain)
	conflictTarget := column

	for attempt := 0; attempt < maxRepairAttempts; attempt++ {
		storeErr, err := c.insertRow(ctx, c.table, body, conflictTarget)
		if err != nil {
			st.lastErr = err
			return outcomeExhausted
		}
		if storeErr == nil {
			return outcomeSuccess
		}

		st.lastErr = storeErr
		switch Classify(storeErr) {
		case ClassNoConflictTarget:
			// No uniqueness constraint backs the conflict target; retry as a
			// plain insert.
			conflictTarget = ""
		case ClassUniqueViolation:
			// Row appeared between the update and insert phases.
			return c.tryUpdate(ctx, st, column)
		default:
			if next := c.repairBody(ctx, st, body, column, storeErr); next != outcomeSuccess {
				return next
			}
		}
	}
	return outcomeExhausted
}

// repairBody mutates body according to the classified error. outcomeSuccess
// here means "repaired, retry the request"; anything else aborts this rung.
func (c *Client) repairBody(ctx context.Context, st *upsertState, body map[string]interface{}, column string, storeErr *StoreError) outcome {
	class := Classify(storeErr)
	if Fatal(class) {
		return outcomeFatal
	}

	switch class {
	case ClassUndefinedColumn:
		name := storeErr.Column()
		if name == "" || name == column {
			// The identifier column itself is unknown; move to the next
			// candidate.
			return outcomeExhausted
		}
		delete(body, name)
		return outcomeSuccess
	case ClassNotNullViolation:
		name := storeErr.Column()
		if name == "" {
			return outcomeExhausted
		}
		body[name] = c.inferColumnValue(ctx, st, name)
		return outcomeSuccess
	case ClassTypeMismatch:
		name := storeErr.Column()
		if name == "" {
			// Bare type-mismatch messages omit the column. The only value we
			// ever synthesize with a store-defined type is user_id; null it.
			if _, ok := body["user_id"]; !ok {
				return outcomeExhausted
			}
			name = "user_id"
		}
		body[name] = nil
		return outcomeSuccess
	default:
		return outcomeExhausted
	}
}

// tryMinimalRow is the last resort: guarantee the shop has some row by
// writing only the primary identifier and a timestamp, then best-effort patch
// the full payload in afterwards.
func (c *Client) tryMinimalRow(ctx context.Context, st *upsertState) bool {
	primary := identifierColumns[0]
	body := map[string]interface{}{
		primary:      identifierValue(primary, st.shopDomain),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}

	for attempt := 0; attempt < 2; attempt++ {
		storeErr, err := c.insertRow(ctx, c.table, body, "")
		if err != nil {
			st.lastErr = err
			return false
		}
		if storeErr == nil {
			break
		}
		class := Classify(storeErr)
		if class == ClassUniqueViolation {
			// Row already exists; good enough.
			break
		}
		if class == ClassUndefinedColumn && storeErr.Column() == "updated_at" && attempt == 0 {
			delete(body, "updated_at")
			continue
		}
		st.lastErr = storeErr
		return false
	}

	// Patch the full payload in; failures here are logged but the shop now
	// has a row, which is what this rung guarantees.
	patch := cloneWithoutIdentifiers(st.payload)
	if _, storeErr, err := c.updateRows(ctx, c.table, primary, identifierValue(primary, st.shopDomain), patch); err != nil || storeErr != nil {
		log.Warnf("[ShopStore] minimal row for %s written but full patch failed: %v %v", st.shopDomain, err, storeErr)
	}
	return true
}

func cloneWithoutIdentifiers(payload map[string]interface{}) map[string]interface{} {
	body := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		body[k] = v
	}
	for _, column := range identifierColumns {
		delete(body, column)
	}
	return body
}

// columnInference synthesizes a value for a NOT NULL column the payload never
// mentions, keyed by column-name substring.
type columnInference struct {
	match func(name string) bool
	value func(ctx context.Context, c *Client, st *upsertState) interface{}
}

var columnInferences = []columnInference{
	{
		match: func(n string) bool { return n == "user_id" },
		value: func(ctx context.Context, c *Client, st *upsertState) interface{} {
			return c.lookupUserID(ctx, st)
		},
	},
	{
		match: func(n string) bool { return strings.Contains(n, "url") },
		value: func(_ context.Context, _ *Client, st *upsertState) interface{} {
			return "https://" + st.shopDomain
		},
	},
	{
		match: func(n string) bool { return strings.Contains(n, "shop") || strings.Contains(n, "domain") },
		value: func(_ context.Context, _ *Client, st *upsertState) interface{} { return st.shopDomain },
	},
	{
		match: func(n string) bool { return strings.Contains(n, "plan") },
		value: func(_ context.Context, _ *Client, _ *upsertState) interface{} { return "starter" },
	},
	{
		match: func(n string) bool { return strings.Contains(n, "status") },
		value: func(_ context.Context, _ *Client, _ *upsertState) interface{} { return "inactive" },
	},
	{
		match: func(n string) bool { return strings.Contains(n, "currency") },
		value: func(_ context.Context, _ *Client, _ *upsertState) interface{} { return "USD" },
	},
	{
		match: func(n string) bool { return strings.Contains(n, "email") },
		value: func(_ context.Context, _ *Client, _ *upsertState) interface{} { return "" },
	},
	{
		match: func(n string) bool {
			return strings.HasSuffix(n, "_at") || strings.Contains(n, "date") || strings.Contains(n, "time")
		},
		value: func(_ context.Context, _ *Client, _ *upsertState) interface{} {
			return time.Now().UTC().Format(time.RFC3339)
		},
	},
	{
		match: func(n string) bool {
			return strings.Contains(n, "count") || strings.Contains(n, "used") ||
				strings.Contains(n, "included") || strings.Contains(n, "images") ||
				strings.Contains(n, "price")
		},
		value: func(_ context.Context, _ *Client, _ *upsertState) interface{} { return 0 },
	},
}

func (c *Client) inferColumnValue(ctx context.Context, st *upsertState, name string) interface{} {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, inf := range columnInferences {
		if inf.match(n) {
			return inf.value(ctx, c, st)
		}
	}
	return ""
}

// lookupUserID resolves the store-side user id for a shop from the secondary
// shops table, memoized per upsert call so repeated inference doesn't repeat
// the lookup.
func (c *Client) lookupUserID(ctx context.Context, st *upsertState) interface{} {
	if v, ok := st.inferMemo["user_id"]; ok {
		return v
	}

	var value interface{}
	rows, storeErr, err := c.selectRows(ctx, c.shopsTable, "shop_domain", st.shopDomain, 1)
	if err == nil && storeErr == nil && len(rows) > 0 {
		value = rows[0]["user_id"]
	} else if storeErr != nil || err != nil {
		log.Warnf("[ShopStore] user_id lookup for %s failed: %v %v", st.shopDomain, err, storeErr)
	}

	st.inferMemo["user_id"] = value
	return value
}
