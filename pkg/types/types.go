// Package types defines the cluster-wide entities replicated by the state
// store: nodes, instances, accounts, tasks, and the overlay/DNS entities
// that reference them.
package types

import (
	"net"
	"time"
)

// Address is a hex-encoded 20-byte identifier derived from a secp256k1
// public key. The same address space identifies nodes (as CRDT actors) and
// accounts; callers that need to disambiguate carry a role tag alongside it.
type Address string

// Node is a peer's control-plane identity: capabilities, declared
// endpoints, and the annotations the scheduler filters on.
type Node struct {
	ID Address `json:"id"`
	Endpoints []string `json:"endpoints"`
	Capabilities NodeCapabilities `json:"capabilities"`
	Metrics NodeMetrics `json:"metrics"`
	Annotations NodeAnnotations `json:"annotations"`
	OperatorKeys []string `json:"operator_keys"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	CreatedAt time.Time `json:"created_at"`
}

// NodeCapabilities describes declared hardware and confidential-compute
// capabilities, grounded on form-node-metrics/src/capabilities.rs.
type NodeCapabilities struct {
	CPUModel string `json:"cpu_model"`
	CPUCores int `json:"cpu_cores"`
	MemoryMB int64 `json:"memory_mb"`
	DiskMB int64 `json:"disk_mb"`
	GPUs []GPUDescriptor `json:"gpus,omitempty"`
	NetworkMbps int `json:"network_mbps"`
	HasTPM bool `json:"has_tpm"`
	HasSGX bool `json:"has_sgx"`
	HasSEV bool `json:"has_sev"`
}

// GPUDescriptor names a single attached accelerator.
type GPUDescriptor struct {
	Model string `json:"model"`
	MemoryMB int64 `json:"memory_mb"`
	Count int `json:"count"`
}

// NodeMetrics holds the most recently reported live utilization.
type NodeMetrics struct {
	CPUUsedPercent float64 `json:"cpu_used_percent"`
	MemoryUsedMB int64 `json:"memory_used_mb"`
	DiskUsedMB int64 `json:"disk_used_mb"`
	ReportedAt time.Time `json:"reported_at"`
}

// NodeAnnotations carries scheduling-relevant tags; Roles is the set the
// Proof-of-Claim scheduler filters a task's required_capabilities against.
type NodeAnnotations struct {
	Roles []string `json:"roles"`
	Labels map[string]string `json:"labels,omitempty"`
}

// HasAllRoles reports whether the node declares every role in required.
func (a NodeAnnotations) HasAllRoles(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(a.Roles))
	for _, r := range a.Roles {
		have[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}

// InstanceStatus is the lifecycle state of a launched workload.
type InstanceStatus string

const (
	InstanceBuilding InstanceStatus = "Building"
	InstanceCreated InstanceStatus = "Created"
	InstanceStarted InstanceStatus = "Started"
	InstanceStopped InstanceStatus = "Stopped"
	InstanceBuilt InstanceStatus = "Built"
	InstanceDeleting InstanceStatus = "Deleting"
	InstanceDeleted InstanceStatus = "Deleted"
	InstanceFailed InstanceStatus = "Failed"
	InstanceCriticalError InstanceStatus = "CriticalError"
	InstancePending InstanceStatus = "Pending"
	InstanceRunning InstanceStatus = "Running"
	InstanceUnknown InstanceStatus = "Unknown"
)

// Absorbing reports whether s is a terminal error state that only an
// operator cleanup op may transition out of.
func (s InstanceStatus) Absorbing() bool {
	return s == InstanceFailed || s == InstanceCriticalError
}

// Instance is a launched (or launching) workload: the id is derived from
// (node_id, build_id) so that any peer that knows both can compute it.
type Instance struct {
	ID string `json:"id"`
	Owner Address `json:"owner"`
	NodeID Address `json:"node_id"`
	BuildID string `json:"build_id"`
	Status InstanceStatus `json:"status"`
	Resources ResourceAllotment `json:"resources"`
	FormnetIP net.IP `json:"formnet_ip,omitempty"`
	Domain string `json:"domain,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResourceAllotment is the resource grant given to an instance.
type ResourceAllotment struct {
	VCPUs int `json:"vcpus"`
	MemoryMB int64 `json:"memory_mb"`
	DiskMB int64 `json:"disk_mb"`
}

// AuthLevel is the authorization an account holds over an instance.
type AuthLevel string

const (
	AuthOwner AuthLevel = "Owner"
	AuthReadWrite AuthLevel = "ReadWrite"
	AuthReadOnly AuthLevel = "ReadOnly"
)

// SubscriptionTier gates API-key rate limits (pkg/auth).
type SubscriptionTier string

const (
	TierFree SubscriptionTier = "free"
	TierDeveloper SubscriptionTier = "developer"
	TierBusiness SubscriptionTier = "business"
	TierEnterprise SubscriptionTier = "enterprise"
)

// APIKey is a hashed credential; only the SHA-256 digest of the secret is
// ever stored.
type APIKey struct {
	ID string `json:"id"`
	SecretSHA string `json:"secret_sha256"`
	Label string `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	RevokedAt time.Time `json:"revoked_at,omitempty"`
}

// Account is an actor in the global address space that owns instances and
// hires agents.
type Account struct {
	ID Address `json:"id"`
	OwnedInstances []string `json:"owned_instances"`
	HiredAgents []string `json:"hired_agents"`
	APIKeys []APIKey `json:"api_keys"`
	Tier SubscriptionTier `json:"tier"`
	SubscriptionActive bool `json:"subscription_active"`
	CreditBalanceCents int64 `json:"credit_balance_cents"`
	UsageCounters UsageCounters `json:"usage_counters"`
	Grants map[string]AuthLevel `json:"grants"` // instance id -> level
	CreatedAt time.Time `json:"created_at"`
}

// UsageCounters holds metered consumption for billing as plain data on an
// Account (the billing front end itself is out of scope; no usage-reporting
// interface is implemented in this repository).
type UsageCounters struct {
	InstanceSeconds int64 `json:"instance_seconds"`
	BytesEgress int64 `json:"bytes_egress"`
	BuildSeconds int64 `json:"build_seconds"`
}

// AgentFramework names the platform an agent was built on.
type AgentFramework string

const (
	FrameworkLangChain AgentFramework = "LangChain"
	FrameworkAutoGPT AgentFramework = "AutoGPT"
	FrameworkCrewAI AgentFramework = "CrewAI"
	FrameworkFormationAgent AgentFramework = "FormationAgent"
	FrameworkCustom AgentFramework = "Custom"
)

// AgentRuntime names the execution environment an agent's image runs.
type AgentRuntime string

const (
	RuntimePython AgentRuntime = "Python"
	RuntimeNodeJS AgentRuntime = "NodeJS"
	RuntimeDocker AgentRuntime = "Docker"
	RuntimeWasm AgentRuntime = "WebAssembly"
)

// Agent is a registered, hireable workload template: an account publishes
// one to the registry, other accounts hire it (recorded in their
// Account.HiredAgents), and hiring launches an Instance from its
// FormfileTemplate.
type Agent struct {
	ID string `json:"id"`
	Owner Address `json:"owner"`
	Name string `json:"name"`
	Version string `json:"version"`
	Description string `json:"description"`
	Framework AgentFramework `json:"framework"`
	Runtime AgentRuntime `json:"runtime"`
	Tags []string `json:"tags,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	FormfileTemplate string `json:"formfile_template"`
	Resources ResourceAllotment `json:"resources"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskStatus is the lifecycle of a scheduled unit of work.
type TaskStatus string

const (
	TaskPendingPoCAssessment TaskStatus = "PendingPoCAssessment"
	TaskPoCAssigned TaskStatus = "PoCAssigned"
	TaskClaimed TaskStatus = "Claimed"
	TaskInProgress TaskStatus = "InProgress"
	TaskCompleted TaskStatus = "Completed"
	TaskFailed TaskStatus = "Failed"
	TaskCancelled TaskStatus = "Cancelled"
)

// TaskVariant tags the polymorphic task payload; the scheduler matches on
// RequiredCapabilities only, never on the variant itself.
type TaskVariant string

const (
	TaskBuildImage TaskVariant = "BuildImage"
	TaskLaunchInstance TaskVariant = "LaunchInstance"
)

// BuildImageSpec is the payload of a BuildImage task.
type BuildImageSpec struct {
	Source string `json:"source"`
	Args []string `json:"args"`
	Target string `json:"target"`
}

// LaunchInstanceSpec is the payload of a LaunchInstance task. FormfileContent
// is handed opaquely to the VMM collaborator.
type LaunchInstanceSpec struct {
	Name string `json:"name"`
	FormfileContent string `json:"formfile_content"`
	Env map[string]string `json:"env"`
}

// Task is a unit of work the Proof-of-Claim scheduler assigns to nodes.
type Task struct {
	ID string `json:"id"`
	Variant TaskVariant `json:"variant"`
	BuildImage *BuildImageSpec `json:"build_image,omitempty"`
	LaunchInstance *LaunchInstanceSpec `json:"launch_instance,omitempty"`
	Status TaskStatus `json:"status"`
	RequiredCapabilities []string `json:"required_capabilities"`
	TargetRedundancy int `json:"target_redundancy"`
	ResponsibleNodes []Address `json:"responsible_nodes"`
	AssignedTo Address `json:"assigned_to,omitempty"`
	Progress int `json:"progress"` // 0-100
	Submitter Address `json:"submitter"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
