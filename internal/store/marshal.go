package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/statekeep/internal/ir"
)

// marshalObject renders an IRObject as canonical JSON TEXT. nil stores as "{}".
func marshalObject(obj ir.IRObject) (string, error) {
	if obj == nil {
		obj = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT. Integers go through
// json.Number inside IRObject.UnmarshalJSON, so values above 2^53 survive.
func unmarshalObject(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// marshalEvent splits an event into nullable kind and payload columns.
func marshalEvent(ev *ir.Event) (sql.NullString, sql.NullString, error) {
	if ev == nil {
		return sql.NullString{}, sql.NullString{}, nil
	}
	payload, err := marshalObject(ev.Payload)
	if err != nil {
		return sql.NullString{}, sql.NullString{}, fmt.Errorf("marshal event payload: %w", err)
	}
	return sql.NullString{String: string(ev.Kind), Valid: true}, sql.NullString{String: payload, Valid: true}, nil
}

func unmarshalEvent(kind, payload sql.NullString) (*ir.Event, error) {
	if !kind.Valid {
		return nil, nil
	}
	ev := &ir.Event{Kind: ir.EventKind(kind.String)}
	if payload.Valid && payload.String != "{}" {
		obj, err := unmarshalObject(payload.String)
		if err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
		ev.Payload = obj
	}
	return ev, nil
}
