// Package controlplane provides the HTTP implementation of the tracker's
// ControlPlaneClient interface, plus an in-memory DevServer that speaks the
// same API for local development.
//
// The error contract mirrors what the tracker expects. Failed submissions
// return submission-class errors and never produce a token. On the status
// path, a 404 or 410 becomes a token-not-found error that terminates
// tracking, while network faults and every other response are transient and
// retried on the next polling pass.
package controlplane
