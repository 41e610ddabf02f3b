// Package dispatch routes decoded Messenger events to their handlers.
//
// Envelopes accepted by the webhook server are queued and served by a small
// worker pool. Inside one envelope, entries and their events are handled
// strictly in order; a failing or panicking handler is logged and the next
// event still runs.
//
// Routing:
//   - OptIn → "Authentication successful" reply
//   - MessageEvent → Router (commands, echo, quick replies, attachments)
//   - Delivery, Read → watermark recorded in the ledger, no reply
//   - Postback → "Postback called" reply
//   - AccountLink → logged
//   - Unknown → logged and dropped
//
// Redeliveries are filtered through the ledger: the first claim of an
// event's dedupe key wins and later copies are skipped.
package dispatch
