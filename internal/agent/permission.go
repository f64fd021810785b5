package agent

// PermissionAction is a per-agent permission setting: allow, ask, or
// deny. This is a coarser, agent-persona-scoped knob than the Policy
// Engine's rule table. The Agent Loop does not consult it; its tool
// calls are gated by internal/policy alone.
type PermissionAction string

const (
	ActionAllow PermissionAction = "allow"
	ActionAsk   PermissionAction = "ask"
	ActionDeny  PermissionAction = "deny"
)

// PermissionType names which agent-level permission a lookup is for.
type PermissionType string

const (
	PermEdit        PermissionType = "edit"
	PermBash        PermissionType = "bash"
	PermWebFetch    PermissionType = "webfetch"
	PermExternalDir PermissionType = "external_directory"
	PermDoomLoop    PermissionType = "doom_loop"
)
