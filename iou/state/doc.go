// Package state defines the ledger facts and transitions exchanged between
// nodes: parties and their keys, obligations (IOUs), commands, proposed
// transitions and their signed and notarized forms.
//
// Every value is immutable by convention. Settling or transferring an
// obligation produces a new Obligation consumed-and-replaced through a
// Transition, and signatures are added through WithSignature, which returns a
// copy. A transition's identity is the SHA-256 digest of its canonical JSON
// encoding, so every node derives the same ID from the same content.
package state
