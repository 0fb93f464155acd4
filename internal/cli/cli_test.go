package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanRecord = `[{"ocid":"ocds-9","publishedDate":"2024-05-01T00:00:00Z","buyer":{"id":"B9","name":"Muni"},
  "tender":{"title":"Papel","procurementMethod":"open","mainProcurementCategory":"goods"},
  "awards":[{"id":"A9","date":"2024-05-01T12:00:00Z","suppliers":[{"id":"S9","name":"Acme"}]}]}]`

// No buyer and no date: an orphan procurement with a missing required field.
const dirtyRecord = `{"records":[{"ocid":"ocds-x","tender":{"title":"t"}}]}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func writeConfig(t *testing.T, dir, runsYAML string) string {
	t.Helper()
	return writeFile(t, dir, "procgraph.yaml", "log_mode: development\nstore:\n  backend: memory\n"+runsYAML)
}

const noLedger = "runs:\n  driver: none\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"rebuild", "load", "analyze", "verify", "serve", "runs"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"config", "format", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag --%s", name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestStrictFlagOnlyOnVerifyingCommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, sub := range cmd.Commands() {
		has := sub.Flags().Lookup("strict") != nil
		switch sub.Name() {
		case "rebuild", "verify":
			assert.True(t, has, "%s should accept --strict", sub.Name())
		default:
			assert.False(t, has, "%s should not accept --strict", sub.Name())
		}
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRebuild_JSONOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, noLedger)
	input := writeFile(t, dir, "records.json", cleanRecord)

	out, err := execute(t, "--config", cfg, "--format", "json", "rebuild", input)
	require.NoError(t, err)

	resp := decode(t, out)
	assert.Equal(t, "ok", resp["status"])
	data := resp["data"].(map[string]any)
	assert.Equal(t, "rebuild", data["kind"])
	assert.EqualValues(t, 1, data["rawRecords"])
	assert.EqualValues(t, 1, data["normalized"])
	assert.Len(t, data["stages"], 8)

	report := data["risk"].(map[string]any)["report"].(map[string]any)
	quick := report["quickAwards"].(map[string]any)
	assert.EqualValues(t, 1, quick["sameDay"])
}

func TestRebuild_TextOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, noLedger)
	input := writeFile(t, dir, "records.json", cleanRecord)

	out, err := execute(t, "--config", cfg, "rebuild", input)
	require.NoError(t, err)
	assert.Contains(t, out, "records: raw=1 normalized=1")
	assert.Contains(t, out, "integrity: clean")
	assert.Contains(t, out, "nodes Procurement")
}

func TestRebuild_NoInputs(t *testing.T) {
	t.Setenv("PROCGRAPH_INPUTS", "")
	dir := t.TempDir()
	cfg := writeConfig(t, dir, noLedger)

	out, err := execute(t, "--config", cfg, "--format", "json", "rebuild")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	resp := decode(t, out)
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, ErrCodeNoInputs, resp["error"].(map[string]any)["code"])
}

func TestRebuild_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, noLedger)

	out, err := execute(t, "--config", cfg, "--format", "json", "rebuild", filepath.Join(dir, "nope.json"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decode(t, out)
	assert.Equal(t, ErrCodeStep, resp["error"].(map[string]any)["code"])
}

func TestRebuild_StrictFailsOnFindings(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, noLedger)
	input := writeFile(t, dir, "records.json", dirtyRecord)

	_, err := execute(t, "--config", cfg, "--format", "json", "rebuild", input)
	require.NoError(t, err, "findings alone do not fail without --strict")

	out, err := execute(t, "--config", cfg, "--format", "json", "rebuild", "--strict", input)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	integrity := decode(t, out)["data"].(map[string]any)["verify"].(map[string]any)["integrity"].(map[string]any)
	assert.EqualValues(t, 1, integrity["orphanProcurements"])
	assert.EqualValues(t, 1, integrity["missingRequiredFields"])
}

func TestConfigError(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "bad.yaml", "store:\n  backend: cassandra\n")

	_, err := execute(t, "--config", cfg, "verify")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRuns_LedgerDisabled(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, noLedger)

	_, err := execute(t, "--config", cfg, "--format", "json", "runs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRuns_ListsRecordedRuns(t *testing.T) {
	dir := t.TempDir()
	ledger := filepath.Join(dir, "runs.db")
	cfg := writeConfig(t, dir, "runs:\n  driver: sqlite\n  dsn: "+ledger+"\n")
	input := writeFile(t, dir, "records.json", cleanRecord)

	_, err := execute(t, "--config", cfg, "--format", "json", "rebuild", input)
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "--format", "json", "runs")
	require.NoError(t, err)
	list := decode(t, out)["data"].([]any)
	require.Len(t, list, 1)
	run := list[0].(map[string]any)
	assert.Equal(t, "rebuild", run["kind"])
	assert.Equal(t, "succeeded", run["status"])

	out, err = execute(t, "--config", cfg, "--format", "json", "runs", run["id"].(string))
	require.NoError(t, err)
	detail := decode(t, out)["data"].(map[string]any)
	assert.NotEmpty(t, detail["events"])

	_, err = execute(t, "--config", cfg, "runs", "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}
