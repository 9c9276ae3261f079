// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties and tags
//   - Format: container-level metadata including the tag map that carries
//     creation_time
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
//
// A container with no streams of a kind is an empty result, not an error.
package ffprobe
