// Package server exposes the lyrics library over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers "METHOD /path/{wildcard}" patterns on [http.ServeMux].
//
// # Identity
//
// Authentication is handled in front of this service. Requests carry the user id in the
// X-User-ID header; [RequireUser] rejects requests without it.
//
// # JSON API
//
// [API] serves songs, lyrics documents, version history and annotations. Errors map to statuses
// with [StatusFor]: not found 404, stale version or duplicate annotation 409, validation 400, anything else 500.
// Saving lyrics takes the version the client last read:
//
//	PUT /songs/{id}/lyrics {"raw_text": "...", "expected_version": 3}
//
// Clients poll GET /songs/{id} while fetch_state is "fetching".
package server
