package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake/internal/drafts"
	"intake/internal/form"
	"intake/internal/onboarding"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCatalogueCommands(t *testing.T) {
	t.Run("pathways lists every activity type", func(t *testing.T) {
		out, err := run(t, "pathways")
		require.NoError(t, err)
		for _, a := range []string{"financial_services", "innovation_sandbox", "token_issuance"} {
			assert.Contains(t, out, a)
		}
	})

	t.Run("steps hides steps outside the pathway", func(t *testing.T) {
		out, err := run(t, "steps", "innovation_sandbox")
		require.NoError(t, err)
		assert.Contains(t, out, "shareholding")
		assert.NotContains(t, out, "regulatory_compliance")
	})

	t.Run("unknown activity type is rejected", func(t *testing.T) {
		_, err := run(t, "steps", "lottery")
		assert.Error(t, err)
	})

	t.Run("documents include pathway additions", func(t *testing.T) {
		out, err := run(t, "documents", "token_issuance")
		require.NoError(t, err)
		assert.Contains(t, out, "white_paper")
	})
}

func TestSampleValidates(t *testing.T) {
	out, err := run(t, "sample", "token_issuance")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "draft.json")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))

	out, err = run(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"fieldErrors": {}`)

	var d form.Draft
	require.NoError(t, json.Unmarshal(mustRead(t, path), &d))
	delete(d.Fields, "legalEntityName")
	edited, err := json.Marshal(d)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, edited, 0o600))

	out, err = run(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "legalEntityName")
}

func TestSaveThenResume(t *testing.T) {
	t.Setenv("DRAFT_LOCAL_PATH", filepath.Join(t.TempDir(), "drafts.db"))
	t.Setenv("DRAFT_STORE_URL", "")

	out, err := run(t, "sample", "innovation_sandbox")
	require.NoError(t, err)
	var d form.Draft
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	delete(d.Fields, "entityType")
	data, err := json.Marshal(d)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "draft.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	out, err = run(t, "--caller", "caller-1", "save", path)
	require.NoError(t, err)
	var receipt drafts.SaveReceipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	assert.NotEmpty(t, receipt.DraftID)

	out, err = run(t, "--caller", "caller-1", "resume")
	require.NoError(t, err)
	var progress onboarding.Progress
	require.NoError(t, json.Unmarshal([]byte(out), &progress))
	assert.Equal(t, "entity_structure", string(progress.CurrentStep))
	assert.Equal(t, "innovation_sandbox", string(progress.ActivityType))
}

func TestSaveRequiresCaller(t *testing.T) {
	t.Setenv("DRAFT_LOCAL_PATH", filepath.Join(t.TempDir(), "drafts.db"))
	path := filepath.Join(t.TempDir(), "draft.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))

	_, err := run(t, "--caller", "", "save", path)
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	out, err := run(t, "--caller", "caller-1", "token")
	require.NoError(t, err)
	caller, err := jwt.CallerIDFromToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "caller-1", caller)
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
