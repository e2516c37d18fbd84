/*
Package proxy implements the HTTP reverse proxy that publishes a single
API of the gateway.

# Proxy Mechanism

1. context matching:

Requests whose path is not under the context of the API are answered
with 404. For the others, the path relative to the context is the
resource of the invocation.

2. upstream request augmentation:

The proxy records the request start time and the attributes of the API
in the state bag of the filter context. Then the request handling
method of all the filters is executed in the order they are defined.
When a filter serves the request, e.g. from a cache, the remaining
filters and the backend are skipped.

3. upstream request:

The request is forwarded to the backend, with the resource path
appended to the backend path. The backend request start and end times
are recorded in the state bag. When the backend cannot be reached, the
response is 502 and the end time stays unset.

4. downstream response augmentation:

The response handling method of the executed filters is called in
reverse order. Panics in the filters are logged and do not affect the
other filters.

5. downstream response:

The response is copied to the client, and an access log entry is
printed.
*/
package proxy
