// Package client provides the transport-side helpers layered around the mail
// providers: error classification, retrying fetcher decorators, and an
// instrumented http.RoundTripper with quota gating.
//
// None of this is part of the sync engine's contract. The engine never
// retries; callers opt in by wrapping their fetchers:
//
//	summaries := client.NewRetryingSummaryFetcher(provider, client.NewRetrier())
//	details := client.NewRetryingDetailFetcher(provider, client.NewRetrier())
//
// and route provider traffic through the transport:
//
//	httpClient := client.NewHTTPClient(oauthClient, client.DefaultTransportConfig("mailsync/1.0"))
package client
