// Package channel implements the side channels riding the entity
// stream: named remote procedure calls, text chat, and voice frames.
//
// Each channel validates and routes; none of them blocks the tick
// loop. Chat and voice apply per-peer flood control and drop rather
// than queue when a sender exceeds its budget.
package channel
