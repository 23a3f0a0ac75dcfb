package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ccbdesk/ccb"
)

// run executes the CLI against a shared SQLite file.
func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--driver", "sqlite", "--sqlite", db, "--timezone", "UTC", "--log-level", "error"}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_ClaimFinalizeReport(t *testing.T) {
	// GIVEN: An empty ledger file
	db := filepath.Join(t.TempDir(), "desk.db")

	// WHEN: ana claims a case and leaves it pending
	out, err := run(t, db, "claim", "1001", "--analyst", "ana", "--amount", "5.000,00", "--partner", "Acme")
	require.NoError(t, err)
	assert.Contains(t, out, "created 1001")
	assert.Contains(t, out, "Em Análise")

	out, err = run(t, db, "claim", "1001", "--analyst", "bruno")
	require.NoError(t, err)
	assert.Contains(t, out, "resumed 1001")

	_, err = run(t, db, "finalize", "1001", "pending", "--analyst", "ana")
	assert.ErrorIs(t, err, ccb.ErrValidationFailed)

	out, err = run(t, db, "finalize", "1001", "pending", "--analyst", "ana", "--notes", "faltou RG")
	require.NoError(t, err)
	assert.Contains(t, out, "1001 -> Análise Pendente")

	// THEN: Approving locks the case
	_, err = run(t, db, "finalize", "1001", "aprovada", "--analyst", "ana")
	assert.ErrorIs(t, err, ccb.ErrInvalidInput, "unknown result word")

	_, err = run(t, db, "finalize", "1001", "approved", "--analyst", "ana")
	require.NoError(t, err)

	_, err = run(t, db, "claim", "1001", "--analyst", "bruno")
	assert.ErrorIs(t, err, ccb.ErrAlreadyFinalized)

	// AND: Reports see it
	out, err = run(t, db, "report", "status", "--json")
	require.NoError(t, err)
	var counts ccb.StatusCounts
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, 1, counts.Approved)
	assert.Equal(t, 1, counts.Total)

	out, err = run(t, db, "report", "analysts")
	require.NoError(t, err)
	assert.Contains(t, out, "ana")
	assert.Contains(t, out, "5000.00")

	out, err = run(t, db, "show", "1001")
	require.NoError(t, err)
	assert.Contains(t, out, "Análise Aprovada")
}

func TestCLI_ShowMissingCase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "desk.db")

	_, err := run(t, db, "show", "nope")
	assert.ErrorIs(t, err, ccb.ErrNotFound)
}

func TestCLI_BadDriverFlag(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--driver", "gsheets", "report", "status"})

	assert.ErrorContains(t, cmd.Execute(), "unknown ledger driver")
}

func TestCLI_ReportPeriodRejectsReversedRange(t *testing.T) {
	db := filepath.Join(t.TempDir(), "desk.db")

	_, err := run(t, db, "report", "period", "2026-03-31", "2026-03-01")
	assert.ErrorIs(t, err, ccb.ErrInvalidPeriod)
}
