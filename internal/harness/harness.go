package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/redrec/internal/kv/memory"
	"github.com/roach88/redrec/internal/record"
	"github.com/roach88/redrec/internal/testutil"
)

// Scenario clock: the first create is stamped 1000.000 ms and every later
// create one millisecond after the previous one.
const (
	ClockStart int64 = 1_000_000
	ClockStep  int64 = 1_000
)

// Harness executes scenarios against an in-memory store.
type Harness struct {
	logger *slog.Logger
}

// New returns a harness that logs to logger. A nil logger discards output.
func New(logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{logger: logger}
}

// Run executes scenario with a quiet harness.
func Run(scenario *Scenario) (*Result, error) {
	return New(nil).Run(context.Background(), scenario)
}

// Run executes every step against a fresh store and collection. The error
// is non-nil only when the scenario cannot run at all; step failures and
// expect mismatches are reported through the Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	coll, err := record.New(record.Config{
		Name:        scenario.Collection.Name,
		Store:       memory.New(),
		PrimaryKeys: scenario.Collection.PrimaryKeys,
		LookupKeys:  scenario.Collection.LookupKeys,
		Clock:       testutil.NewDeterministicClock(ClockStart, ClockStep),
		IDs:         testutil.NewSequenceIDs(scenario.IDs...),
		Logger:      h.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev := TraceEvent{Step: i + 1, Op: step.Op, Args: stepArgs(step)}
		ev.Outcome = h.execute(ctx, coll, step)
		result.AddTrace(ev)

		if step.Expect != nil {
			for _, msg := range checkExpect(step, ev.Outcome) {
				result.AddError(fmt.Sprintf("step %d (%s): %s", ev.Step, step.Op, msg))
			}
		}
		h.logger.Debug("scenario step", "scenario", scenario.Name, "step", ev.Step, "op", step.Op)
	}
	return result, nil
}

// execute runs one step and describes its outcome with canonical values.
func (h *Harness) execute(ctx context.Context, coll *record.Collection, step Step) map[string]any {
	switch step.Op {
	case OpCreate:
		created, err := coll.Create(ctx, step.Fields)
		if err != nil {
			return errorOutcome(err)
		}
		return map[string]any{"id": created.ID, "timestamp": created.Timestamp}

	case OpFindByID:
		rec, found, err := coll.FindByID(ctx, step.ID)
		return single(rec, found, err)

	case OpFindOneByLookup:
		rec, found, err := coll.FindOneByLookupKey(ctx, step.Field, step.Value)
		return single(rec, found, err)

	case OpFindByLookup:
		recs, err := coll.FindByLookupKey(ctx, step.Field, step.Value, record.LookupOptions{
			Limit:   step.Limit,
			Reverse: step.Reverse,
		})
		return many(recs, err)

	case OpFindAll:
		recs, err := coll.FindAll(ctx)
		return many(recs, err)

	case OpDeleteAll:
		n, err := coll.DeleteAll(ctx)
		if err != nil {
			return errorOutcome(err)
		}
		return map[string]any{"count": n}
	}
	return map[string]any{"error": ErrorKindOther}
}

func single(rec record.Record, found bool, err error) map[string]any {
	if err != nil {
		return errorOutcome(err)
	}
	if !found {
		return map[string]any{"found": false}
	}
	return map[string]any{"found": true, "record": rec}
}

func many(recs []record.Record, err error) map[string]any {
	if err != nil {
		return errorOutcome(err)
	}
	list := make([]any, len(recs))
	for i, r := range recs {
		list[i] = r
	}
	return map[string]any{"count": len(recs), "records": list}
}

func errorOutcome(err error) map[string]any {
	return map[string]any{"error": ErrorKind(err)}
}

// stepArgs returns the inputs the step actually uses.
func stepArgs(step Step) map[string]any {
	args := map[string]any{}
	switch step.Op {
	case OpCreate:
		fields := step.Fields
		if fields == nil {
			fields = map[string]string{}
		}
		args["fields"] = fields
	case OpFindByID:
		args["id"] = step.ID
	case OpFindOneByLookup:
		args["field"] = step.Field
		args["value"] = step.Value
	case OpFindByLookup:
		args["field"] = step.Field
		args["value"] = step.Value
		if step.Limit != 0 {
			args["limit"] = step.Limit
		}
		if step.Reverse {
			args["reverse"] = true
		}
	}
	return args
}

// checkExpect compares an outcome with the step's expect clause and returns
// one message per mismatch.
func checkExpect(step Step, outcome map[string]any) []string {
	exp := step.Expect
	var errs []string

	gotErr, _ := outcome["error"].(string)
	if exp.Error != gotErr {
		if gotErr == "" {
			errs = append(errs, fmt.Sprintf("expected error %q, got success", exp.Error))
		} else {
			errs = append(errs, fmt.Sprintf("unexpected error %q", gotErr))
		}
		return errs
	}
	if gotErr != "" {
		return nil
	}

	if exp.Found != nil {
		found, ok := outcome["found"].(bool)
		if !ok {
			errs = append(errs, "found does not apply to "+step.Op)
		} else if found != *exp.Found {
			errs = append(errs, fmt.Sprintf("expected found=%t, got %t", *exp.Found, found))
		}
	}

	rec, _ := outcome["record"].(record.Record)
	if exp.ID != "" {
		got, _ := outcome["id"].(string)
		if rec != nil {
			got = rec.ID()
		}
		if got != exp.ID {
			errs = append(errs, fmt.Sprintf("expected id %q, got %q", exp.ID, got))
		}
	}
	if len(exp.Fields) > 0 {
		if rec == nil {
			errs = append(errs, "fields expected but no record returned")
		} else {
			for _, k := range sortedKeys(exp.Fields) {
				if got, ok := rec[k]; !ok || got != exp.Fields[k] {
					errs = append(errs, fmt.Sprintf("field %s: expected %q, got %q", k, exp.Fields[k], got))
				}
			}
		}
	}

	if exp.Count != nil {
		count, ok := outcome["count"].(int)
		if !ok {
			errs = append(errs, "count does not apply to "+step.Op)
		} else if count != *exp.Count {
			errs = append(errs, fmt.Sprintf("expected count %d, got %d", *exp.Count, count))
		}
	}
	if exp.IDs != nil {
		got := outcomeIDs(outcome)
		if !slices.Equal(got, exp.IDs) {
			errs = append(errs, fmt.Sprintf("expected ids %v, got %v", exp.IDs, got))
		}
	}
	return errs
}

func outcomeIDs(outcome map[string]any) []string {
	list, _ := outcome["records"].([]any)
	ids := make([]string, 0, len(list))
	for _, r := range list {
		if rec, ok := r.(record.Record); ok {
			ids = append(ids, rec.ID())
		}
	}
	return ids
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
