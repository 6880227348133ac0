// Package reservation forwards pre-reservation requests for freshly
// verified registrants to the scheduling service over NATS.
package reservation
