// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// In Clean Architecture / Hexagonal Architecture, ports are the boundaries
// between the application core and the outside world. They define what the
// application needs from external systems without specifying how those needs
// are fulfilled.
//
// # Port Interfaces
//
//   - [Ingester]: Posts batches to the ingestion endpoint and classifies the response
//   - [BufferFS]: Segment storage for the durable queue
//   - [BookmarkRepository]: Persists and loads the durable read cursor
//   - [Quarantine]: Retains payloads the server permanently rejected
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement these interfaces
// with concrete implementations (file system, HTTP, zerolog, etc.).
//
// This separation enables:
//   - Testing the queues with in-memory fakes, without real disk or network I/O
//   - Swapping infrastructure without changing business logic
//   - Clear boundaries and dependency direction
package ports
