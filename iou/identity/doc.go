// Package identity holds node signing identities and the network map.
//
// An Identity is passed explicitly to every component that needs to know
// which party it acts for. Directory resolves party names and keys and lists
// the notaries available on the network.
package identity
