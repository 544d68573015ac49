// Package domain contains the core domain entities and value objects for logship.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (HTTP, file system, logging) and
// contains only pure business logic.
//
// # Entities
//
//   - [Level]: Event severity, Verbose through Fatal
//   - [Event]: A single formatted log event ready for shipping
//   - [Batch]: An ordered group of events shipped in one request
//   - [Segment]: One rotation unit of the on-disk durable buffer
//   - [Bookmark]: Persistent read cursor into the durable buffer
//   - [Outcome]: The classified result of posting a batch
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Focused on business rules and invariants
//   - Testable without mocks or external systems
package domain
