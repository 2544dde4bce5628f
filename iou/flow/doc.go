// Package flow drives transitions from a draft to a notarized record.
//
// An attempt runs in three stages. The assembler builds the transition,
// validates it locally and signs it. Signature collection then opens one
// session per counterparty and gathers their countersignatures
// concurrently; any rejection or timeout discards the attempt. Finality
// submits the fully signed transition to its notary and distributes the
// notarized result to every participant. Nothing is written to the vault
// before the notary accepts.
//
// The same Node answers sessions opened by other parties through Serve.
package flow
