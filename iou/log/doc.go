// Package log defines the logging contract shared by every lib-iou package.
//
// Flows, notaries and transports log through Logger so a node can plug in the
// zap adapter (package zap) or drop everything with NopLogger.
package log
