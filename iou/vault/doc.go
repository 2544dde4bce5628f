// Package vault holds the notarized transitions a node took part in and
// tracks which of its obligations are still unconsumed.
package vault
