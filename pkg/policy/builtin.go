package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		protectedDeletesPolicy(),
		requireResourceIDPolicy(),
		resourceTypeFormatPolicy(),
		allowedConnectionsPolicy(),
	}
}

// protectedDeletesPolicy blocks delete submissions for resource types the
// operator has marked protected.
func protectedDeletesPolicy() Policy {
	return Policy{
		Name:        "protected-deletes",
		Description: "Blocks delete submissions for protected resource types",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"deletion", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package opwatch.policies.protected

import rego.v1

deny contains violation if {
	input.request.operation == "delete"
	some protected in input.context.protected_types
	protected == input.request.resource_type
	violation := {
		"message": sprintf("Resource type %s is protected from deletion", [input.request.resource_type]),
		"severity": "critical",
	}
}
`,
	}
}

// requireResourceIDPolicy blocks update and delete submissions that do not
// name a target resource.
func requireResourceIDPolicy() Policy {
	return Policy{
		Name:        "require-resource-id",
		Description: "Updates and deletes must name the target resource",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"target", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package opwatch.policies.target

import rego.v1

deny contains violation if {
	input.request.operation in {"update", "delete"}
	not input.request.resource_id
	violation := {
		"message": sprintf("%s submissions must name a resource", [input.request.operation]),
		"severity": "error",
	}
}
`,
	}
}

// allowedConnectionsPolicy restricts submissions to an allow-list of
// connection identities. The policy only fires when an allow-list is
// configured.
func allowedConnectionsPolicy() Policy {
	return Policy{
		Name:        "allowed-connections",
		Description: "Submissions must come from an allow-listed connection",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"identity", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package opwatch.policies.identity

import rego.v1

deny contains violation if {
	count(input.context.allowed_connections) > 0
	not input.request.connection_id in input.context.allowed_connections
	violation := {
		"message": sprintf("Connection %q is not allow-listed for submissions", [input.request.connection_id]),
		"severity": "critical",
	}
}
`,
	}
}

// resourceTypeFormatPolicy enforces the namespaced resource type format,
// e.g. "registry:bucket".
func resourceTypeFormatPolicy() Policy {
	return Policy{
		Name:        "resource-type-format",
		Description: "Resource types must be lowercase, colon-namespaced identifiers",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"schema", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package opwatch.policies.schema

import rego.v1

deny contains violation if {
	not regex.match(` + "`^[a-z0-9_]+(:[a-z0-9_]+)*$`" + `, input.request.resource_type)
	violation := {
		"message": sprintf("Resource type %q must match lowercase namespace:name form", [input.request.resource_type]),
		"severity": "error",
	}
}
`,
	}
}
