// Package zap adapts go.uber.org/zap to the lib-iou log.Logger contract.
//
// Entries are teed into the OpenTelemetry log bridge so node logs travel with
// the traces of the transaction attempt that produced them.
package zap
