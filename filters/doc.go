/*
Package filters contains the interfaces of the filters applied by the
proxy to the requests and responses of an API, and the registry of
their specifications.

A filter is created by its Spec. Filter instances belong to the API
route, not to a request, so any state stored in a filter is shared by
all the requests. Per request state is kept in the state bag of the
FilterContext.

# Usage state bag keys

The proxy records the timestamps and the attributes of every
invocation in the state bag, under the Usage* keys. Timestamps are
epoch milliseconds. Filters running before the proxy reaches the
backend, e.g. authentication, may add the identity attributes of the
consumer:

	func (f *keyValidator) Request(ctx filters.FilterContext) {
		ctx.StateBag()[filters.UsageConsumerKeyKey] = consumerKey
		ctx.StateBag()[filters.UsageUserIDKey] = "alice@wso2.com"
	}

The usagepublisher filter reads these keys in its response handler.
*/
package filters
