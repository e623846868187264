// Package preflight provides readiness checks for the external binaries
// and filesystem paths audiolens depends on.
//
// These checks run in two contexts:
//   - "audiolens serve" runs them at startup and refuses to come up when a
//     required binary is missing, so jobs never fail minutes in on a
//     missing tool.
//   - "audiolens doctor" renders the same results as a table for humans.
//
// Checks are gated by config: qpdf is only required while PDF repair is
// enabled.
package preflight
