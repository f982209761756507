// Package mailbox defines the records, cursors, fetcher contracts and error
// taxonomy shared by the sync engine and the mail providers.
//
// A provider exposes two endpoints: a paginated list of lightweight
// summaries (SummaryFetcher) and a per-message detail read (DetailFetcher).
// Providers that can hydrate several messages in one round trip also
// implement BatchDetailFetcher.
//
// Errors returned by providers follow a small taxonomy:
//
//   - ErrNotFound: the message no longer exists remotely
//   - *TransportError: network, TLS or authentication failure
//   - *RemoteError: a well-formed error response from the remote service
//
// Callers should use errors.Is and errors.As rather than comparing values.
package mailbox
