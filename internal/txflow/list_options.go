package txflow

import (
	"strings"
	"time"
)

// SortOrder defines how results should be ordered when listing attempts.
type SortOrder int

const (
	// SortByUpdatedDesc orders attempts by UpdatedAt descending (most recent first).
	SortByUpdatedDesc SortOrder = iota
	// SortByUpdatedAsc orders attempts by UpdatedAt ascending (oldest first).
	SortByUpdatedAsc
)

// ListOptions controls how attempts are selected when querying the store.
type ListOptions struct {
	Limit      int
	Offset     int
	Phases     []Phase
	Operations []Operation
	Account    string
	UpdatedGTE int64
	UpdatedLTE int64
	Order      SortOrder
}

// applyDefaults sanitizes the options and fills in default values.
func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Phases != nil {
		opts.Phases = normalizePhases(opts.Phases)
	}
	if opts.Operations != nil {
		opts.Operations = normalizeOperations(opts.Operations)
	}
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	opts.Account = strings.TrimSpace(opts.Account)
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of attempts returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching attempts before returning results.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithPhases filters attempts by the provided lifecycle phases.
func WithPhases(phases ...Phase) ListOption {
	return func(opts *ListOptions) {
		opts.Phases = append(opts.Phases[:0], phases...)
	}
}

// WithOperations filters attempts by contract operation.
func WithOperations(operations ...Operation) ListOption {
	return func(opts *ListOptions) {
		opts.Operations = append(opts.Operations[:0], operations...)
	}
}

// WithAccount filters attempts by the submitting account address.
func WithAccount(account string) ListOption {
	return func(opts *ListOptions) {
		opts.Account = account
	}
}

// WithUpdatedSince filters attempts updated after the provided instant (inclusive).
func WithUpdatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.UpdatedGTE = 0
			return
		}
		opts.UpdatedGTE = ts.Unix()
	}
}

// WithUpdatedUntil filters attempts updated before the provided instant (inclusive).
func WithUpdatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.UpdatedLTE = 0
			return
		}
		opts.UpdatedLTE = ts.Unix()
	}
}

// WithSortOrder changes the returned order of attempts.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
	}
}

// buildListOptions applies option functions on top of defaults.
func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizePhases(input []Phase) []Phase {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[Phase]struct{}, len(input))
	result := make([]Phase, 0, len(input))
	for _, phase := range input {
		if !IsValidPhase(phase) {
			continue
		}
		if _, ok := seen[phase]; ok {
			continue
		}
		seen[phase] = struct{}{}
		result = append(result, phase)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func normalizeOperations(input []Operation) []Operation {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[Operation]struct{}, len(input))
	result := make([]Operation, 0, len(input))
	for _, op := range input {
		if !IsValidOperation(op) {
			continue
		}
		if _, ok := seen[op]; ok {
			continue
		}
		seen[op] = struct{}{}
		result = append(result, op)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
