// Package classifier turns raw lookup payloads into the closed Outcome type.
// It is the only place that inspects response bodies; everything downstream
// works on models.Outcome.
package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"mutuals/internal/poller/models"
	"mutuals/pkg/domain"
)

// CodeNoOverlap is the API error code for "no shared context with the caller".
const CodeNoOverlap = 50001

// maxRetryAfter bounds server-supplied waits so a hostile value cannot overflow a Duration.
const maxRetryAfter = 24 * time.Hour

// Classify maps one raw lookup result to exactly one outcome. It is a pure
// function of its input.
//
// Precedence: transport error, undecodable body, retry_after, error code,
// then the kind-specific shape check.
func Classify(raw models.RawLookupResult) models.Outcome {
	if raw.Err != nil {
		return models.Malformed(fmt.Sprintf("transport: %v", raw.Err))
	}

	var payload any
	dec := json.NewDecoder(bytes.NewReader(raw.Body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return models.Malformed(fmt.Sprintf("body is not JSON (status %d)", raw.StatusCode))
	}

	if obj, ok := payload.(map[string]any); ok {
		if v, present := obj["retry_after"]; present {
			return classifyRetryAfter(v)
		}
		if v, present := obj["code"]; present {
			return classifyCode(v)
		}
	}

	switch raw.Kind {
	case models.LookupGroups:
		return classifyGroups(payload)
	case models.LookupConnections:
		return classifyConnections(payload)
	default:
		return models.Malformed(fmt.Sprintf("unknown lookup kind %q", raw.Kind))
	}
}

// RetryAfterDuration converts fractional seconds to a Duration, rounding up to
// the millisecond so the caller never waits less than requested.
func RetryAfterDuration(seconds float64) time.Duration {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	if seconds >= maxRetryAfter.Seconds() {
		return maxRetryAfter
	}
	return time.Duration(math.Ceil(seconds*1000)) * time.Millisecond
}

func classifyRetryAfter(v any) models.Outcome {
	n, ok := v.(json.Number)
	if !ok {
		return models.Malformed("retry_after is not a number")
	}
	f, err := n.Float64()
	// Out-of-range literals come back as ±Inf or 0 and are clamped below.
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return models.Malformed("retry_after is not a number")
	}
	return models.RateLimited(RetryAfterDuration(f))
}

func classifyCode(v any) models.Outcome {
	n, ok := v.(json.Number)
	if !ok {
		return models.Malformed("error code is not a number")
	}
	code, err := n.Int64()
	if err != nil {
		return models.Malformed("error code is not an integer")
	}
	if code == CodeNoOverlap {
		return models.Denied()
	}
	return models.Malformed(fmt.Sprintf("api error code %d", code))
}

func classifyGroups(payload any) models.Outcome {
	obj, ok := payload.(map[string]any)
	if !ok {
		return models.Malformed("group lookup payload is not an object")
	}

	list, ok := obj["mutual_guilds"].([]any)
	if !ok {
		return models.Malformed("missing mutual_guilds list")
	}
	groups := make([]domain.GroupID, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return models.Malformed(fmt.Sprintf("mutual_guilds[%d] is not an object", i))
		}
		raw, ok := scalarString(entry["id"])
		if !ok {
			return models.Malformed(fmt.Sprintf("mutual_guilds[%d] has no id", i))
		}
		gid, err := domain.ParseGroupID(raw)
		if err != nil {
			return models.Malformed(fmt.Sprintf("mutual_guilds[%d]: %v", i, err))
		}
		groups = append(groups, gid)
	}

	user, ok := obj["user"].(map[string]any)
	if !ok {
		return models.Malformed("missing user object")
	}
	name, ok := user["username"].(string)
	if !ok || name == "" {
		return models.Malformed("missing user.username")
	}

	return models.Resolved(models.LookupData{Name: name, Groups: groups})
}

func classifyConnections(payload any) models.Outcome {
	list, ok := payload.([]any)
	if !ok {
		return models.Malformed("connection lookup payload is not a list")
	}
	conns := make([]models.Connection, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return models.Malformed(fmt.Sprintf("connection[%d] is not an object", i))
		}
		raw, ok := scalarString(entry["id"])
		if !ok {
			return models.Malformed(fmt.Sprintf("connection[%d] has no id", i))
		}
		id, err := domain.ParseUserID(raw)
		if err != nil {
			return models.Malformed(fmt.Sprintf("connection[%d]: %v", i, err))
		}
		name, ok := entry["username"].(string)
		if !ok || name == "" {
			return models.Malformed(fmt.Sprintf("connection[%d] has no username", i))
		}
		conns = append(conns, models.Connection{ID: id, Name: name})
	}
	return models.Resolved(models.LookupData{Connections: conns})
}

// scalarString accepts ids sent either as strings or as bare numbers.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}
