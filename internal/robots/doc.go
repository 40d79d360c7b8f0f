// Package robots decides whether the crawler may fetch a URL according to
// the site's robots.txt.
//
// A Gate fetches robots.txt once per scheme://host and keeps the parsed
// rules for the lifetime of the Gate. Concurrent first requests for the same
// domain share a single download. When robots.txt cannot be fetched, or the
// server answers with anything other than 200, the domain gets a permissive
// rule set and a warning is logged.
package robots
