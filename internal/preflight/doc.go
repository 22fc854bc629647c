// Package preflight provides readiness checks for the paths, credential
// store, and provider keys cara depends on.
//
// The CLI "cara doctor" command runs RunAll and renders one line per check.
// Live key checks are opt-in because they spend provider quota.
package preflight
