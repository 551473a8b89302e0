// Package grid loads the declarative task grid: HCL files describing the
// units of work to execute, their dependencies and scheduling metadata, and
// optional executor settings.
package grid

// Model is the fully evaluated, format-agnostic representation of a grid.
type Model struct {
	Settings *Settings
	Tasks    []*Task
}

// Settings mirrors the optional `settings` block. Pointer fields distinguish
// "absent" from zero so CLI flags can take precedence only where the file is
// silent.
type Settings struct {
	Workers           *int
	Policy            *string
	QueueCapacity     *int
	RejectionPolicy   *string
	ShutdownPolicy    *string
	ShutdownTimeoutMs *int64
	MonitorIntervalMs *int64
}

// Task is one `task` block: a named shell command with scheduling metadata.
type Task struct {
	// Name is the block label, unique within a grid.
	Name string
	// Command is the evaluated shell command line.
	Command string
	// DependsOn lists the names of tasks that must succeed first.
	DependsOn []string
	// Priority is the scheduling priority name ("low", "normal", "high",
	// "critical"). Empty means normal.
	Priority string
	// DeadlineMs is a deadline-policy scheduling hint; 0 means none.
	DeadlineMs int64
	// CPUCores and MemoryMB are advisory resource constraints; 0 means
	// unconstrained.
	CPUCores int64
	MemoryMB int64
}
