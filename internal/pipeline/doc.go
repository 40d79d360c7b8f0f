// Package pipeline runs the per-site stages of a crawl run in sequence.
//
// A Job carries one start URL through a Pipeline of Steps: crawl the site,
// compare it with the previous stored session, save it and write the
// report. Each step reads and fills in the Job.
//
// BatchProcessor runs one fresh Pipeline per start URL with a bounded
// number of sites in flight, using errgroup.
package pipeline
