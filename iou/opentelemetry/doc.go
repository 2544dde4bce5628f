// Package opentelemetry holds span helpers, trace propagation over message
// headers and the flow metric instruments.
package opentelemetry
