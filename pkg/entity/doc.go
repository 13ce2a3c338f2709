// Package entity is a client for the entity server HTTP API.
//
// Every request is signed with HMAC-SHA256 over
// "method|path?query|timestamp|nonce|body" using the shared secret, and sent
// with the X-API-Key, X-Timestamp, X-Nonce and X-Signature headers. Responses
// are JSON envelopes {"ok": bool, "message": ...}; when the server answers with
// application/octet-stream the body is an XChaCha20-Poly1305 secure packet
// keyed with sha256(secret) that decrypts to the same envelope.
//
// Transactions: StartTransaction registers a server-side queue and makes it the
// client's active transaction; Submit and Delete attach it automatically;
// CommitTransaction or RollbackTransaction finish it. A client holds at most
// one active transaction and is not safe for concurrent use.
package entity
