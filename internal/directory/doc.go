// Package directory resolves external reference tokens to internal
// identifiers.
//
// Search requests address devices, device types, assignments, customers,
// areas and assets by token. The Resolver interface maps each token kind
// to its internal ID; HTTPResolver asks the directory service over REST
// and CachedResolver layers a TTL cache on top of any resolver.
package directory
