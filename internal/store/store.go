// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store is the hash-structured key-value store shared by every
// gateway worker. All cross-process coordination goes through it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by HGet when the field does not exist.
var ErrNotFound = errors.New("store: field not found")

// Hash is the subset of hash operations the pipeline relies on. Every call is
// a single atomic operation; there are no transactions across calls.
type Hash interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key string, fields ...string) error
	Del(ctx context.Context, key string) error
	HKeys(ctx context.Context, key string) ([]string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// GetJSON decodes the field into v. found is false, with a nil error, when the
// field is absent.
func GetJSON(ctx context.Context, h Hash, key, field string, v any) (found bool, err error) {
	raw, err := h.HGet(ctx, key, field)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s[%s]: %w", key, field, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key/field.
func SetJSON(ctx context.Context, h Hash, key, field string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s[%s]: %w", key, field, err)
	}
	return h.HSet(ctx, key, field, string(data))
}

// GetAllJSON decodes every field of key into a map of T. Fields that fail to
// decode are reported through the returned error after the rest are collected.
func GetAllJSON[T any](ctx context.Context, h Hash, key string) (map[string]T, error) {
	raw, err := h.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(raw))
	var errs []error
	for field, value := range raw {
		var v T
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			errs = append(errs, fmt.Errorf("decode %s[%s]: %w", key, field, err))
			continue
		}
		out[field] = v
	}
	return out, errors.Join(errs...)
}
