// Package shipment holds the cargo shipment model shared by the bot, the
// admin API and the store: operation types, the status state machine,
// actors and the error taxonomy.
package shipment
