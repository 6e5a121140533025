package hypothesis

import "github.com/huntfabric/corehunt/pkg/contracts"

// Category is an invariant category a hypothesis template belongs to.
type Category string

const (
	CategoryAuthorization Category = "authorization"
	CategoryMonetary      Category = "monetary"
	CategoryWorkflow      Category = "workflow"
	CategorySession       Category = "session"
	CategoryInput         Category = "input"
	CategoryTrust         Category = "trust"
)

// Template is one entry in the fixed catalog of hypothesis-generation
// templates. TargetFlag names the Target.TechFlags key
// that must be set for the template to fire at all; BaseTestability is
// bumped by category-target affinity when it fires.
type Template struct {
	Category        Category
	Description     string
	TargetFlag      string
	ActionType      contracts.ActionType
	BaseTestability float64
	Affinity        float64 // added to BaseTestability when the target's flags reinforce this category
}

// DefaultCatalog is the fixed set of hypothesis templates an Engine uses
// when New is given a nil catalog. Callers can pass their own catalog to
// New instead, for example a test catalog.
var DefaultCatalog = []Template{
	{
		Category:        CategoryAuthorization,
		Description:     "endpoint enforces authorization check before returning resource",
		TargetFlag:      "auth_present",
		ActionType:      contracts.ActionAuth,
		BaseTestability: 0.6,
		Affinity:        0.25,
	},
	{
		Category:        CategoryAuthorization,
		Description:     "object-level authorization holds across tenant boundary (IDOR)",
		TargetFlag:      "multi_tenant",
		ActionType:      contracts.ActionAuth,
		BaseTestability: 0.55,
		Affinity:        0.3,
	},
	{
		Category:        CategoryMonetary,
		Description:     "price or quantity cannot be mutated client-side before checkout",
		TargetFlag:      "has_checkout",
		ActionType:      contracts.ActionStateMutation,
		BaseTestability: 0.5,
		Affinity:        0.3,
	},
	{
		Category:        CategoryWorkflow,
		Description:     "workflow step cannot be skipped or replayed out of order",
		TargetFlag:      "has_multistep_workflow",
		ActionType:      contracts.ActionWorkflowStep,
		BaseTestability: 0.45,
		Affinity:        0.2,
	},
	{
		Category:        CategorySession,
		Description:     "session token is invalidated on logout and cannot be reused",
		TargetFlag:      "auth_present",
		ActionType:      contracts.ActionAuth,
		BaseTestability: 0.65,
		Affinity:        0.15,
	},
	{
		Category:        CategoryInput,
		Description:     "endpoint rejects malformed or oversized input without a 5xx",
		TargetFlag:      "has_public_api",
		ActionType:      contracts.ActionHTTP,
		BaseTestability: 0.7,
		Affinity:        0.1,
	},
	{
		Category:        CategoryTrust,
		Description:     "third-party webhook signature is verified before state mutation",
		TargetFlag:      "has_webhooks",
		ActionType:      contracts.ActionTool,
		BaseTestability: 0.4,
		Affinity:        0.35,
	},
}
