// Package domain defines the core value types for the range migration job
// engine.
//
// Types in this package are pure value objects with no behavior beyond
// validation and comparison, no database dependencies, and no HTTP
// concerns. They are the shared language between the connectors, the
// columnar writer, the blob store client, and the job coordinator.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON tags are allowed (they're metadata, not behavior)
//   - Validation/comparison methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here
package domain
