// Package rally defines the shared data model for the rally detection
// core: detections, media timestamps, trajectory samples, physics
// scores, classifications, and the final rally segments.
//
// Responsibilities: plain value types and their small helpers only.
// Algorithmic components live in the subpackages (track, gate,
// classify, quality, decider, segments, pipeline) and depend on this
// package, never on one another's internals.
package rally
