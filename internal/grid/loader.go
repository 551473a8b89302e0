package grid

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/taskgrid/internal/ctxlog"
)

// fileRoot is the decode target for all top-level blocks of any grid file.
type fileRoot struct {
	Variables []*variablesBlock `hcl:"variables,block"`
	Settings  []*settingsBlock  `hcl:"settings,block"`
	Tasks     []*taskBlock      `hcl:"task,block"`
}

// variablesBlock carries arbitrary attributes that become the `var` object
// in the evaluation context of every task attribute.
type variablesBlock struct {
	Remain hcl.Body `hcl:",remain"`
}

type settingsBlock struct {
	Workers           *int    `hcl:"workers,optional"`
	Policy            *string `hcl:"policy,optional"`
	QueueCapacity     *int    `hcl:"queue_capacity,optional"`
	RejectionPolicy   *string `hcl:"rejection_policy,optional"`
	ShutdownPolicy    *string `hcl:"shutdown_policy,optional"`
	ShutdownTimeoutMs *int64  `hcl:"shutdown_timeout_ms,optional"`
	MonitorIntervalMs *int64  `hcl:"monitor_interval_ms,optional"`
}

type taskBlock struct {
	Name      string         `hcl:"name,label"`
	Command   hcl.Expression `hcl:"command"`
	DependsOn []string       `hcl:"depends_on,optional"`
	Priority  *string        `hcl:"priority,optional"`
	Deadline  hcl.Expression `hcl:"deadline_ms,optional"`
	CPUCores  hcl.Expression `hcl:"cpu_cores,optional"`
	MemoryMB  hcl.Expression `hcl:"memory_mb,optional"`
}

// Load parses the grid at path (a single .hcl file or a directory searched
// recursively) and evaluates it into a Model. Variables from all files are
// collected first, so a task may reference a variable declared in a sibling
// file.
func Load(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findHCLFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found at %s", path)
	}
	logger.Debug("Discovered grid files.", "count", len(files))

	parser := hclparse.NewParser()
	var roots []*fileRoot
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse grid file %s: %w", file, diags)
		}
		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode grid file %s: %w", file, diags)
		}
		roots = append(roots, &root)
	}

	evalCtx, err := buildEvalContext(roots)
	if err != nil {
		return nil, err
	}

	model := &Model{}
	seen := make(map[string]struct{})
	for _, root := range roots {
		for _, sb := range root.Settings {
			if model.Settings != nil {
				return nil, fmt.Errorf("duplicate settings block: a grid may declare at most one")
			}
			model.Settings = translateSettings(sb)
		}
		for _, tb := range root.Tasks {
			if _, dup := seen[tb.Name]; dup {
				return nil, fmt.Errorf("duplicate task name %q", tb.Name)
			}
			seen[tb.Name] = struct{}{}
			t, err := translateTask(tb, evalCtx)
			if err != nil {
				return nil, err
			}
			model.Tasks = append(model.Tasks, t)
		}
	}

	logger.Debug("Grid loading complete.", "tasks", len(model.Tasks))
	return model, nil
}

// buildEvalContext collects every `variables` attribute into the `var`
// object available to task expressions.
func buildEvalContext(roots []*fileRoot) (*hcl.EvalContext, error) {
	vars := make(map[string]cty.Value)
	for _, root := range roots {
		for _, vb := range root.Variables {
			attrs, diags := vb.Remain.JustAttributes()
			if diags.HasErrors() {
				return nil, fmt.Errorf("failed to read variables block: %w", diags)
			}
			for name, attr := range attrs {
				val, diags := attr.Expr.Value(nil)
				if diags.HasErrors() {
					return nil, fmt.Errorf("failed to evaluate variable %q: %w", name, diags)
				}
				vars[name] = val
			}
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"var": cty.ObjectVal(vars),
		},
	}, nil
}

func translateSettings(sb *settingsBlock) *Settings {
	return &Settings{
		Workers:           sb.Workers,
		Policy:            sb.Policy,
		QueueCapacity:     sb.QueueCapacity,
		RejectionPolicy:   sb.RejectionPolicy,
		ShutdownPolicy:    sb.ShutdownPolicy,
		ShutdownTimeoutMs: sb.ShutdownTimeoutMs,
		MonitorIntervalMs: sb.MonitorIntervalMs,
	}
}

func translateTask(tb *taskBlock, evalCtx *hcl.EvalContext) (*Task, error) {
	command, err := evalString(tb.Command, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("task %q: command: %w", tb.Name, err)
	}
	if command == "" {
		return nil, fmt.Errorf("task %q: command must not be empty", tb.Name)
	}

	t := &Task{
		Name:      tb.Name,
		Command:   command,
		DependsOn: tb.DependsOn,
	}
	if tb.Priority != nil {
		t.Priority = *tb.Priority
	}
	if t.DeadlineMs, err = evalInt64(tb.Deadline, evalCtx); err != nil {
		return nil, fmt.Errorf("task %q: deadline_ms: %w", tb.Name, err)
	}
	if t.CPUCores, err = evalInt64(tb.CPUCores, evalCtx); err != nil {
		return nil, fmt.Errorf("task %q: cpu_cores: %w", tb.Name, err)
	}
	if t.MemoryMB, err = evalInt64(tb.MemoryMB, evalCtx); err != nil {
		return nil, fmt.Errorf("task %q: memory_mb: %w", tb.Name, err)
	}
	return t, nil
}

// evalString evaluates an expression and converts the result to a string.
func evalString(expr hcl.Expression, evalCtx *hcl.EvalContext) (string, error) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}
	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	if val.IsNull() {
		return "", nil
	}
	return val.AsString(), nil
}

// evalInt64 evaluates an optional numeric expression; an absent attribute
// yields zero.
func evalInt64(expr hcl.Expression, evalCtx *hcl.EvalContext) (int64, error) {
	if expr == nil {
		return 0, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return 0, diags
	}
	if val.IsNull() {
		return 0, nil
	}
	var n int64
	if err := gocty.FromCtyValue(val, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// findHCLFiles resolves path to a sorted list of .hcl files: either the file
// itself, or every .hcl file under the directory.
func findHCLFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat grid path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".hcl") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
