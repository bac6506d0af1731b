package harness

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redrec/internal/kv"
	"github.com/roach88/redrec/internal/record"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func TestRun_Golden(t *testing.T) {
	for _, name := range []string{"latest_email", "composite_pk"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
			assert.Len(t, result.Trace, len(s.Steps))
		})
	}
}

func TestRun_Outcomes(t *testing.T) {
	s := &Scenario{
		Name:       "outcomes",
		Collection: CollectionSpec{Name: "users", LookupKeys: []string{"email"}},
		IDs:        []string{"u1"},
		Steps: []Step{
			{Op: OpCreate, Fields: map[string]string{"email": " a@x.com "}},
			{Op: OpFindOneByLookup, Field: "email", Value: " a@x.com "},
			{Op: OpFindByLookup, Field: "email", Value: "a@x.com", Limit: 1, Reverse: true},
			{Op: OpCreate, Fields: map[string]string{"email": "b@x.com"}},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass)
	require.Len(t, result.Trace, 4)

	assert.Equal(t, map[string]any{"id": "u1", "timestamp": "1000.000"}, result.Trace[0].Outcome)

	// Lookup entries keep the raw value; the hash keeps it trimmed.
	assert.Equal(t, true, result.Trace[1].Outcome["found"])
	rec := result.Trace[1].Outcome["record"].(record.Record)
	assert.Equal(t, "a@x.com", rec["email"])
	assert.Equal(t, 0, result.Trace[2].Outcome["count"])
	assert.Equal(t, map[string]any{"field": "email", "value": "a@x.com", "limit": int64(1), "reverse": true}, result.Trace[2].Args)

	assert.Equal(t, "id-0001", result.Trace[3].Outcome["id"])
	assert.Equal(t, "1001.000", result.Trace[3].Outcome["timestamp"])
}

func TestRun_ExpectMismatch(t *testing.T) {
	s := &Scenario{
		Name:       "mismatch",
		Collection: CollectionSpec{Name: "users", LookupKeys: []string{"email"}},
		IDs:        []string{"u1"},
		Steps: []Step{
			{Op: OpCreate, Fields: map[string]string{"email": "a@x.com"}, Expect: &Expect{ID: "u9"}},
			{Op: OpCreate, Fields: map[string]string{}, Expect: &Expect{ID: "u2"}},
			{Op: OpCreate, Fields: map[string]string{"email": "b@x.com"}, Expect: &Expect{Error: ErrorKindValidation}},
			{Op: OpFindByID, ID: "u1", Expect: &Expect{Found: boolPtr(false), Fields: map[string]string{"email": "z"}}},
			{Op: OpFindAll, Expect: &Expect{Count: intPtr(5), IDs: []string{"u1"}}},
			{Op: OpDeleteAll, Expect: &Expect{Found: boolPtr(true)}},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		`step 1 (create): expected id "u9", got "u1"`,
		`step 2 (create): unexpected error "validation"`,
		`step 3 (create): expected error "validation", got success`,
		`step 4 (find_by_id): expected found=false, got true`,
		`step 4 (find_by_id): field email: expected "z", got "a@x.com"`,
		`step 5 (find_all): expected count 5, got 2`,
		`step 5 (find_all): expected ids [u1], got [u1 id-0001]`,
		`step 6 (delete_all): found does not apply to delete_all`,
	}, result.Errors)
}

func TestRun_BadCollection(t *testing.T) {
	s := &Scenario{
		Name:       "bad",
		Collection: CollectionSpec{Name: "users", LookupKeys: []string{"a:b"}},
		Steps:      []Step{{Op: OpFindAll}},
	}
	_, err := Run(s)
	require.Error(t, err)
	assert.True(t, record.IsConfigError(err))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, ErrorKindValidation, ErrorKind(&record.ValidationError{Missing: []string{"x"}}))
	assert.Equal(t, ErrorKindConfig, ErrorKind(&record.ConfigError{Option: "name"}))
	assert.Equal(t, ErrorKindBatch, ErrorKind(&record.BatchError{Errs: []error{errors.New("x")}}))
	assert.Equal(t, ErrorKindConflict, ErrorKind(fmt.Errorf("%w: %w", record.ErrWriteConflict, kv.ErrTxAborted)))
	assert.Equal(t, ErrorKindUnavailable, ErrorKind(fmt.Errorf("x: %w", kv.ErrUnavailable)))
	assert.Equal(t, ErrorKindOther, ErrorKind(errors.New("boom")))
}

func TestSnapshot_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/composite_pk.yaml")
	require.NoError(t, err)

	a, err := Run(s)
	require.NoError(t, err)
	b, err := Run(s)
	require.NoError(t, err)

	snapA, err := Snapshot(s.Name, a)
	require.NoError(t, err)
	snapB, err := Snapshot(s.Name, b)
	require.NoError(t, err)
	assert.Equal(t, string(snapA), string(snapB))
}
