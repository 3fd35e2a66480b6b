package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lakerun/internal/render"
	"github.com/roach88/lakerun/internal/testutil"
)

type cliFixture struct {
	root   string
	runner *testutil.FakeRunner
	svc    *testutil.FakeService
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "metadata", "env.comet.yml"), "env:\n  engine: spark\n")
	writeFile(t, filepath.Join(root, ".lakerun.yml"),
		"starlake_bin: "+filepath.Join(root, "bin", "starlake-assembly.jar")+"\n")

	return &cliFixture{
		root:   root,
		runner: testutil.NewFakeRunner(),
		svc:    &testutil.FakeService{},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// run executes the CLI against the fixture workspace with fresh options.
func (f *cliFixture) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	opts := &RootOptions{
		Runner:        f.runner,
		Service:       f.svc,
		DetectProject: func(context.Context) (string, error) { return "p-detected", nil },
		Environ:       func() []string { return []string{"PATH=/usr/bin"} },
	}
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := execute(context.Background(), newRootCommand(opts),
		append([]string{"--project-root", f.root}, args...), stdout, stderr)
	return stdout.String(), stderr.String(), code
}

func lastEnv(t *testing.T, r *testutil.FakeRunner, key string) string {
	t.Helper()
	calls := r.Calls()
	require.NotEmpty(t, calls)
	for _, kv := range calls[len(calls)-1].Env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return ""
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lakerun", cmd.Use)

	commands := [][]string{
		{"query"}, {"dry-run"}, {"job", "run"}, {"job", "preview"}, {"job", "engine"},
		{"validate"}, {"load"}, {"yml2gv"}, {"yml2xls"}, {"xls2yml"},
		{"env", "list"}, {"env", "use"}, {"project", "show"}, {"project", "set"}, {"project", "clear"},
		{"history"},
	}
	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "table", format.DefValue)

	for _, name := range []string{"project-root", "config", "env", "project", "history-db"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	f := newCLIFixture(t)
	_, stderr, code := f.run(t, "--format", "xml", "load")

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, `invalid format "xml"`)
	assert.Empty(t, f.runner.Calls())
}

func TestUsageError(t *testing.T) {
	f := newCLIFixture(t)
	_, stderr, code := f.run(t, "query")

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "accepts 1 arg(s)")
}

func TestMissingWorkspace(t *testing.T) {
	f := newCLIFixture(t)
	require.NoError(t, os.RemoveAll(filepath.Join(f.root, "metadata")))

	_, stderr, code := f.run(t, "load")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "error: not found: "+filepath.Join(f.root, "metadata"))
	assert.NoFileExists(t, filepath.Join(f.root, "out", "lakerun.db"))
}

func TestMissingWorkspace_JSON(t *testing.T) {
	f := newCLIFixture(t)
	require.NoError(t, os.RemoveAll(filepath.Join(f.root, "metadata")))

	stdout, _, code := f.run(t, "--format", "json", "load")
	assert.Equal(t, ExitCommandError, code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestQuery_AdHocFile(t *testing.T) {
	f := newCLIFixture(t)
	query := filepath.Join(f.root, "queries", "top.sql")
	writeFile(t, query, "SELECT 1 AS a\n")
	f.svc.Job = &testutil.FakeJob{JobID: "job-7", Bytes: 1500, Result: []render.Row{{{Name: "a", Value: int64(1)}}}}

	stdout, stderr, code := f.run(t, "--format", "csv", "query", query)

	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, "a\n1\n", stdout)
	assert.Contains(t, stderr, "info: Dry run: 1.5 KB")
	assert.Contains(t, stderr, "Results for job job-7:")

	subs := f.svc.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "SELECT 1 AS a\n", subs[0].Request.SQL)
	assert.Equal(t, "p-detected", subs[0].ProjectID)
	assert.Empty(t, f.runner.Calls())

	stdout, _, code = f.run(t, "project", "show")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "p-detected\n", stdout, "the detected project is cached")
}

func TestQuery_Selection(t *testing.T) {
	f := newCLIFixture(t)
	query := filepath.Join(f.root, "queries", "many.sql")
	writeFile(t, query, "SELECT 1;\nSELECT 2;\n")

	_, _, code := f.run(t, "query", query, "--selection", " SELECT 2 ")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, []string{"SELECT 2"}, f.svc.SQL())
}

func TestQuery_CompiledJob(t *testing.T) {
	f := newCLIFixture(t)
	job := filepath.Join(f.root, "metadata", "jobs", "kpi.comet.yml")
	writeFile(t, job, "transform:\n  engine: bq\n")
	f.runner.On("transform --name kpi --compile", testutil.EngineReply{
		Output: "START COMPILE SQL\nSELECT 1\nEND COMPILE SQL",
	})

	_, stderr, code := f.run(t, "query", job)

	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, []string{"\nSELECT 1\n"}, f.svc.SQL())
	assert.Equal(t, "INFO", lastEnv(t, f.runner, "COMET_LOGLEVEL"))
	assert.Equal(t, f.root, lastEnv(t, f.runner, "COMET_ROOT"))
}

func TestQuery_EngineFailureShowsBuffer(t *testing.T) {
	f := newCLIFixture(t)
	job := filepath.Join(f.root, "metadata", "jobs", "kpi.comet.yml")
	writeFile(t, job, "transform:\n  engine: bq\n")
	f.runner.On("transform --name kpi --compile", testutil.EngineReply{
		Output:   "Exception: table ds.sales not found\n",
		ExitCode: 1,
	})

	_, stderr, code := f.run(t, "query", job)

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "error: Transform failed\nException: table ds.sales not found\n")
	assert.Empty(t, f.svc.Submissions())
}

func TestQuery_InteractiveStep(t *testing.T) {
	f := newCLIFixture(t)
	writeFile(t, filepath.Join(f.root, "metadata", "jobs", "kpi.comet.yml"), "transform:\n  engine: bq\n")
	step := filepath.Join(f.root, "metadata", "jobs", "kpi.step1.sql")
	writeFile(t, step, "SELECT * FROM ${dataset}.sales")
	f.runner.On("transform --name kpi --interactive table", testutil.EngineReply{
		Output: "START INTERACTIVE SQL\nn\n-\n1\nEND INTERACTIVE SQL",
	})

	stdout, stderr, code := f.run(t, "query", step)

	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, "n\n-\n1\n", stdout)
	assert.Empty(t, f.svc.Submissions())
}

func TestQuery_UnsupportedJobFile(t *testing.T) {
	f := newCLIFixture(t)
	notes := filepath.Join(f.root, "metadata", "jobs", "notes.txt")
	writeFile(t, notes, "todo")

	_, stderr, code := f.run(t, "query", notes)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "unsupported file in jobs folder")
}

func TestDryRun_SwallowsFailures(t *testing.T) {
	f := newCLIFixture(t)
	query := filepath.Join(f.root, "q.sql")
	writeFile(t, query, "SELEC 1")
	f.svc.Err = assert.AnError

	_, stderr, code := f.run(t, "dry-run", query)
	assert.Equal(t, ExitSuccess, code)
	assert.NotContains(t, stderr, "error:")

	_, stderr, code = f.run(t, "query", query)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "error: Failed to query BigQuery: "+assert.AnError.Error())
}

func TestJobRunAndPreview(t *testing.T) {
	f := newCLIFixture(t)
	f.runner.On("transform --name kpi --compile", testutil.EngineReply{
		Output: "START COMPILE SQL\nSELECT 42\nEND COMPILE SQL",
	})

	_, stderr, code := f.run(t, "job", "run", "metadata/jobs/kpi.step2.sql")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stderr, "info: Transform success")

	stdout, stderr, code := f.run(t, "job", "preview", "kpi")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, "SELECT 42\n", stdout)

	assert.Equal(t, []string{"transform --name kpi", "transform --name kpi --compile"}, f.runner.Args())
	require.Len(t, f.svc.Submissions(), 1)
	assert.True(t, f.svc.Submissions()[0].Request.DryRun)
}

func TestJobEngine(t *testing.T) {
	f := newCLIFixture(t)
	job := filepath.Join(f.root, "metadata", "jobs", "kpi.comet.yml")
	writeFile(t, job, "transform:\n  engine: \"{{engine}}\"\n")

	stdout, stderr, code := f.run(t, "job", "engine", job)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, "spark\n", stdout)

	stdout, _, code = f.run(t, "--format", "json", "job", "engine", job)
	require.Equal(t, ExitSuccess, code)
	var resp struct {
		Data engineInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, engineInfo{Job: "kpi", Engine: "spark", Variable: "engine", Resolved: true}, resp.Data)
}

func TestJobEngine_MissingTransform(t *testing.T) {
	f := newCLIFixture(t)
	job := filepath.Join(f.root, "metadata", "jobs", "kpi.comet.yml")
	writeFile(t, job, "name: kpi\n")

	_, stderr, code := f.run(t, "job", "engine", job)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "transform tag not found in job file")
}

func TestValidateCommand(t *testing.T) {
	f := newCLIFixture(t)
	f.runner.On("validate", testutil.EngineReply{
		Output: "START VALIDATION RESULTS: 1 errors found\nbad domain\nEND VALIDATION RESULTS\n",
	})

	stdout, stderr, code := f.run(t, "validate")

	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "1 errors found\nbad domain\n", stdout)
	assert.Contains(t, stderr, "error: Validation failed. See errors in log: "+filepath.Join(f.root, "out", "run.log"))
	assert.FileExists(t, filepath.Join(f.root, "out", "run.log"))
}

func TestMaintenanceCommands(t *testing.T) {
	f := newCLIFixture(t)
	sheet := filepath.Join(f.root, "sales.xlsx")
	writeFile(t, sheet, "xlsx")

	for _, args := range [][]string{{"load"}, {"yml2gv"}, {"yml2xls"}, {"xls2yml", sheet}} {
		_, stderr, code := f.run(t, args...)
		require.Equal(t, ExitSuccess, code, stderr)
	}

	out := filepath.Join(f.root, "out")
	assert.Equal(t, []string{
		"load",
		"yml2gv --output " + filepath.Join(out, "datagraph.dot"),
		"yml2xls --xls " + out,
		"xls2yml --files " + sheet + " --encryption false",
	}, f.runner.Args())

	f.runner.Default = testutil.EngineReply{ExitCode: 2}
	_, stderr, code := f.run(t, "load")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "error: Load failed 2")
}

func TestEnvUseAndList(t *testing.T) {
	f := newCLIFixture(t)
	writeFile(t, filepath.Join(f.root, "metadata", "env.dev.comet.yml"), "env:\n  engine: bq\n")

	stdout, _, code := f.run(t, "env", "list")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "* None\n  dev\n", stdout)

	_, stderr, code := f.run(t, "env", "use", "dev")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stderr, "info: Environment set to dev")

	stdout, _, _ = f.run(t, "env", "list")
	assert.Equal(t, "  None\n* dev\n", stdout)

	_, _, code = f.run(t, "load")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "dev", lastEnv(t, f.runner, "COMET_ENV"))

	_, _, code = f.run(t, "--env", "None", "load")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "None", lastEnv(t, f.runner, "COMET_ENV"), "the flag wins over the saved env")

	_, stderr, code = f.run(t, "env", "use", "prod")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, `unknown environment "prod"`)
}

func TestProjectCommands(t *testing.T) {
	f := newCLIFixture(t)

	stdout, _, code := f.run(t, "project", "show")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "(none)\n", stdout)

	_, stderr, code := f.run(t, "project", "set", "analytics-prod")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stderr, "info: Project set to analytics-prod")

	stdout, _, _ = f.run(t, "project", "show")
	assert.Equal(t, "analytics-prod\n", stdout)

	_, _, code = f.run(t, "load")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "analytics-prod", lastEnv(t, f.runner, "GCLOUD_PROJECT"))

	_, _, code = f.run(t, "project", "clear")
	require.Equal(t, ExitSuccess, code)
	stdout, _, _ = f.run(t, "project", "show")
	assert.Equal(t, "(none)\n", stdout)

	_, _, code = f.run(t, "project", "set", " ")
	assert.Equal(t, ExitCommandError, code)
}

func TestProjectFlagIsNotPersisted(t *testing.T) {
	f := newCLIFixture(t)
	query := filepath.Join(f.root, "q.sql")
	writeFile(t, query, "SELECT 1")

	_, _, code := f.run(t, "--project", "one-off", "query", query)
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "one-off", f.svc.Submissions()[0].ProjectID)

	stdout, _, _ := f.run(t, "project", "show")
	assert.Equal(t, "(none)\n", stdout)
}

func TestHistoryCommand(t *testing.T) {
	f := newCLIFixture(t)

	_, stderr, code := f.run(t, "history")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stderr, "info: No history recorded")

	f.runner.On("transform --name kpi --compile", testutil.EngineReply{
		Output: "START COMPILE SQL\nSELECT 1\nFROM t\nEND COMPILE SQL",
	})
	_, _, code = f.run(t, "job", "preview", "kpi")
	require.Equal(t, ExitSuccess, code)

	stdout, _, code := f.run(t, "--format", "json", "history")
	require.Equal(t, ExitSuccess, code)
	var run map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(stdout)), &run))
	assert.Equal(t, "run-1", run["id"])
	assert.Equal(t, "transform", run["action"])
	assert.Equal(t, "--name kpi --compile", run["args"])

	stdout, _, code = f.run(t, "--format", "json", "history", "--queries")
	require.Equal(t, ExitSuccess, code)
	var q map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(stdout)), &q))
	assert.Equal(t, "run-1", q["run_id"])
	assert.Equal(t, "SELECT 1 ...", q["sql"])
	assert.Equal(t, true, q["dry_run"])

	_, stderr, code = f.run(t, "history", "--action", "validate")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stderr, "info: No history recorded")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "SELECT 1", firstLine("\n  SELECT 1  \n\n"))
	assert.Equal(t, "SELECT a, ...", firstLine("SELECT a,\n b FROM t"))
	assert.Equal(t, "", firstLine(""))
}

func TestStderrSharedByLogsAndNotices(t *testing.T) {
	f := newCLIFixture(t)
	opts := &RootOptions{Runner: f.runner, Service: f.svc}
	stderr := &bytes.Buffer{}

	code := execute(context.Background(), newRootCommand(opts),
		[]string{"--project-root", f.root, "env", "use", "None"}, &bytes.Buffer{}, stderr)
	require.Equal(t, ExitSuccess, code)

	require.NotNil(t, opts.stderr)
	assert.Same(t, opts.stderr, opts.errWriter(nil))
	assert.Contains(t, stderr.String(), "info: Environment set to None")

	opts.logger.Info("after command")
	assert.Contains(t, stderr.String(), "msg=\"after command\"")
}
