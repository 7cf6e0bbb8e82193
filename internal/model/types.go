// Package model holds the typed records shared across the sandbox
// orchestration layer: configs, results, and the enumerations that
// discriminate sandbox kind and lifecycle state.
package model

import "time"

// SandboxKind selects a sandbox implementation and the set of tools
// permissible against it.
type SandboxKind string

const (
	KindContainer         SandboxKind = "container"
	KindContainerNotebook SandboxKind = "container-notebook"
	KindDummy             SandboxKind = "dummy"
)

// SandboxStatus is the sandbox lifecycle state.
type SandboxStatus string

const (
	StatusInitializing SandboxStatus = "initializing"
	StatusRunning       SandboxStatus = "running"
	StatusStopping      SandboxStatus = "stopping"
	StatusStopped       SandboxStatus = "stopped"
	// StatusError is reachable from any non-terminal state.
	StatusError SandboxStatus = "error"
	// StatusCleanup marks a sandbox past removal; never observed by callers.
	StatusCleanup SandboxStatus = "cleanup"
)

// ExecutionStatus is the outcome of a command or tool execution.
type ExecutionStatus string

const (
	ExecSuccess   ExecutionStatus = "success"
	ExecError     ExecutionStatus = "error"
	ExecTimeout   ExecutionStatus = "timeout"
	ExecCancelled ExecutionStatus = "cancelled"
)

// SandboxConfig is the base configuration shared by every sandbox kind.
type SandboxConfig struct {
	Timeout time.Duration `json:"timeout"`
	Env     map[string]string `json:"env,omitempty"`
	WorkDir string `json:"work_dir,omitempty"`

	// ToolsConfig maps a tool name to its per-instance parameters,
	// resolved into bound tool instances at sandbox start.
	ToolsConfig map[string]map[string]any `json:"tools_config,omitempty"`
}

// VolumeMount binds a host path into the sandbox filesystem.
type VolumeMount struct {
	Bind string `json:"bind"`
	Mode string `json:"mode"`
}

// PortBinding publishes a container port to a host address.
type PortBinding struct {
	HostIP   string `json:"host_ip,omitempty"`
	HostPort string `json:"host_port"`
}

// ContainerSandboxConfig extends SandboxConfig with container-engine
// specific knobs.
type ContainerSandboxConfig struct {
	SandboxConfig

	Image   string   `json:"image"`
	Command []string `json:"command,omitempty"`

	// MemoryLimit uses the engine's native units (e.g. "512m").
	MemoryLimit string `json:"memory_limit,omitempty"`
	// CPULimit is a fractional core count (e.g. 0.5 = half a core).
	CPULimit float64 `json:"cpu_limit,omitempty"`

	Volumes map[string]VolumeMount `json:"volumes,omitempty"`
	Ports   map[string]PortBinding `json:"ports,omitempty"`

	NetworkEnabled bool   `json:"network_enabled"`
	Network        string `json:"network,omitempty"`
	Privileged     bool   `json:"privileged"`
	RemoveOnExit   bool   `json:"remove_on_exit"`
}

// NotebookSandboxConfig extends ContainerSandboxConfig with the
// kernel-gateway's network coordinates.
type NotebookSandboxConfig struct {
	ContainerSandboxConfig

	Host string `json:"host"`
	Port int    `json:"port"`
}

// DefaultNotebookImage is the fixed kernel-gateway image tag built
// on first use when a NotebookSandboxConfig doesn't override Image.
const DefaultNotebookImage = "enclave-kernel-gateway:latest"

// SandboxInfo is a point-in-time snapshot of a sandbox.
type SandboxInfo struct {
	ID         string            `json:"id"`
	Kind       SandboxKind       `json:"kind"`
	Status     SandboxStatus     `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	LastUsed   time.Time         `json:"last_used"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Tools      []string          `json:"tools,omitempty"`
}

// CommandResult is the outcome of running a command (or argv) inside
// a sandbox.
type CommandResult struct {
	Command  string          `json:"command"`
	Status   ExecutionStatus `json:"status"`
	ExitCode int             `json:"exit_code"`
	Stdout   string          `json:"stdout"`
	Stderr   string          `json:"stderr"`
}

// ToolResult is the outcome of a tool invocation.
type ToolResult struct {
	ToolName string          `json:"tool_name"`
	Status   ExecutionStatus `json:"status"`
	Output   string          `json:"output"`
	Error    string          `json:"error,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// SandboxManagerConfig configures a manager's janitor cadence and idle
// TTL. LocalManager does not read DefaultPoolSize, DefaultKind or
// DefaultConfig; the pool is primed only by InitializePool.
type SandboxManagerConfig struct {
	CleanupInterval time.Duration `json:"cleanup_interval"`
	DefaultPoolSize int           `json:"default_pool_size"`
	// IdleTTL of zero disables TTL-based reclamation.
	IdleTTL       time.Duration `json:"idle_ttl,omitempty"`
	DefaultKind   SandboxKind   `json:"default_kind,omitempty"`
	DefaultConfig SandboxConfig `json:"default_config,omitempty"`
}

// ManagerStats summarizes a manager's current state.
type ManagerStats struct {
	TotalByStatus   map[SandboxStatus]int `json:"total_by_status"`
	Pool            PoolStats             `json:"pool"`
	Uptime          time.Duration         `json:"uptime"`
	CleanupInterval time.Duration         `json:"cleanup_interval"`
	LastJanitorRun  time.Time             `json:"last_janitor_run"`
}

// PoolStats summarizes the warm pool.
type PoolStats struct {
	Size        int  `json:"size"`
	Idle        int  `json:"idle"`
	Busy        int  `json:"busy"`
	Initialized bool `json:"initialized"`
}
