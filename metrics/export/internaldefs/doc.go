// Package internaldefs holds the metric names and bucket bounds shared by the
// exporter packages.
//
// Both the Prometheus collector and the OTel exporter read these tables, so a
// rename here changes every exporter at once.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
