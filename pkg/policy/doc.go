// Package policy evaluates mutation submissions against Rego policies using
// the Open Policy Agent.
//
// The Engine compiles policies at load time and collects the deny set of each
// enabled policy on evaluation. Violations with error or critical severity
// block the submission; warnings are reported but do not block.
//
// Three builtin policies ship with the engine:
//
//   - protected-deletes: refuses deletes of operator-protected resource types
//   - require-resource-id: updates and deletes must name their target
//   - resource-type-format: resource types follow the namespace:name form
//
// Guard wires the engine into the tracker: it implements the tracker's
// SubmissionGuard so every blocked submission surfaces to the caller as a
// policy-denied submission failure before anything reaches the control plane.
//
// Custom policies are .rego files with a deny rule:
//
//	package opwatch.policies.office_hours
//
//	import rego.v1
//
//	deny contains violation if {
//		input.request.operation == "delete"
//		violation := {"message": "deletes are disabled", "severity": "error"}
//	}
//
// The Loader reads them from configured directories and can watch for
// changes with fsnotify.
package policy
