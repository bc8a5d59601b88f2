// Package store is the shared durable state reachable by both the webhook
// ingress and the dispatch loop:
//
//   - A strict-FIFO queue of validated alert batches
//   - The set of chat ids currently subscribed to notifications
//
// Popping is destructive: there is no acknowledgement or re-delivery, so a
// crash between a pop and a finished fan-out loses the remaining sends of
// that batch. That trade-off is inherited from the deployment this replaces
// and is deliberately not papered over with retries here.
package store
