// Package sitemap parses XML sitemaps and sitemap indexes
// (https://www.sitemaps.org/protocol.html).
//
// Parse handles a single document. Collect walks an index and its child
// sitemaps through a caller-supplied getter, with a cap on the number of
// documents fetched.
package sitemap
