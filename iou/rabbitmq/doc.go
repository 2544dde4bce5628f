// Package rabbitmq provides AMQP connection helpers and a publisher that
// waits for broker confirmation of every message.
package rabbitmq
