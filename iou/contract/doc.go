// Package contract is the validation engine for obligation transitions.
//
// Verify dispatches on the transition's single command and evaluates every
// rule of that command's rule set:
//   - ISSUE creates one obligation out of nothing.
//   - TRANSFER moves an obligation to a new lender.
//   - SETTLE pays part or all of an obligation.
//
// Verify is pure. It reads nothing but the transition, so every node reaches
// the same verdict on the same transition, and it reports every violated rule
// rather than only the first.
package contract
