/*
Package usagepublisher provides the apiUsagePublisher filter, which
computes the performance metrics of every API invocation on the response
path and hands them to the configured analytics publisher.

The filter never changes the flow it observes: it does not serve, does
not replace the response and does not fail the request, whatever happens
while measuring or publishing. Failures are only logged.

# Timing

The mediation engine leaves epoch millisecond timestamps in the state bag
of the request: the request start (filters.UsageRequestStartTimeKey) and
the start and the end of the backend call (filters.UsageBackendStartTimeKey,
filters.UsageBackendEndTimeKey). The response end is the time when the
filter observes the response. From these, the response time, the backend
time and the service time (the time spent in the gateway) are derived.

A response without a backend start timestamp is counted as a cache hit.
This is a heuristic: the cache does not signal anything, the filter only
infers it from the missing backend round trip.

# Response Size

When the response declares its Content-Length, that is the size. Otherwise,
e.g. for chunked responses, the body is buffered to count its bytes, and
the buffered bytes are put back in front of the remaining stream, so the
client receives the same body.

# Feature switch

The filter is enabled with the -enable-usage-publisher flag, and the
publisher is selected by name with -usage-publisher. When disabled, the
specification creates noop filters and no publisher is ever resolved.
When the publisher can not be created, the failure is logged once and the
filter stops publishing for the lifetime of the process.
*/
package usagepublisher
