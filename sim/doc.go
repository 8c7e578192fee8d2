// Package sim defines the data model and extension points of the QCA
// simulation pipeline.
//
// # Reading Guide
//
// Start with these files:
//   - design.go: Design, Layer, Cell and CellArchitecture as produced by the design editor
//   - model.go: the SimulationModel capability and the model registry
//   - result.go: ProgressEvent, SimulationResult and SimulationMetadata
//
// # Architecture
//
// The sim package defines types and interfaces; implementations live in
// sub-packages:
//   - sim/models/: the simulation models and their clock generator
//   - sim/pipeline/: launches a model run, drains progress, persists the result
//   - sim/store/: the versioned Store container and its repository over sim/blob
//   - sim/blob/: blob storage backends (filesystem, memory, S3)
//   - sim/catalog/: run catalog (sqlite, postgres)
//   - sim/query/: byte-exact playback queries against a Store
//   - sim/truthtable/: truth table derivation from a Store
//   - sim/server/: HTTP surface
//
// sim/models registers its implementations via an init() function that sets
// the package-level factory variable NewModelsFunc.
//
// # Errors
//
// Every recoverable failure wraps one of the Err* kinds in errors.go; use
// errors.Is to classify and KindOf for a short label.
package sim
