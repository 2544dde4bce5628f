// Package iou provides the cross-cutting helpers shared by the lib-iou
// packages: request-scoped tracking (logger, tracer, correlation id) carried in
// context, and environment driven configuration.
//
// Typical usage when a node starts a transaction attempt:
//
//	ctx = iou.ContextWithLogger(ctx, logger)
//	ctx = iou.ContextWithTracer(ctx, tracer)
//	notarized, err := node.Issue(ctx, obligation)
//
// Domain packages live below: state, contract, flow, notary, transport, vault.
package iou
