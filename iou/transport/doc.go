// Package transport carries flow messages between parties over
// point-to-point sessions. MemoryNetwork serves tests and single-process
// deployments; AMQPTransport routes sessions through a RabbitMQ broker.
package transport
