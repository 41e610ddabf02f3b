// Package webhook serves the Messenger platform callback endpoint.
//
// # Security Model
//
//   - Every POST body is authenticated before it is parsed: HMAC over the raw
//     bytes keyed by the app secret, compared in constant time
//   - sha1 (X-Hub-Signature) and sha256 (X-Hub-Signature-256) headers are accepted
//   - Body size limits are enforced before verification
//   - Verification failures always answer a generic 403
//   - Request logging records the path only, never bodies or query strings
//
// # Routes
//
//	GET  /webhook    subscription handshake (hub.mode, hub.verify_token, hub.challenge)
//	POST /webhook    event callbacks
//	GET  /authorize  account-linking confirmation page
//	GET  /healthz    liveness
//
// # Request Flow
//
//  1. HTTP POST arrives at /webhook
//  2. Body size checked (413 if too large)
//  3. Signature header verified (403 if missing or wrong)
//  4. Envelope decoded (400 if malformed, 404 if object is not "page")
//  5. Envelope handed to the Submitter (503 if it cannot be queued)
//  6. 200 EVENT_RECEIVED returned; handling continues asynchronously
package webhook
