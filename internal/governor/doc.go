// Package governor serializes outbound calls per backend.
//
// Each key (a provider id) gets a single-flight slot and a spacing limiter so
// no two requests to the same backend overlap and consecutive dispatches keep
// a minimum gap. Retries for rate-limited responses run inside the held slot,
// using one shared policy instead of ad hoc loops in every adapter. Calls for
// different keys proceed independently.
package governor
