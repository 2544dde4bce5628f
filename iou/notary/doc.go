// Package notary finalizes fully signed transitions. A notary is a trusted
// non-validating oracle: it checks signatures, refuses any transition whose
// inputs were already consumed by another transition and signs the rest.
package notary
