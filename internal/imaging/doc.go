// Package imaging normalizes raw sheet scans for mark detection.
//
// The package owns the first stage of the per-sheet pipeline: loading the
// decoded raster (Cache), the fixed preprocessing sequence of grayscale
// conversion, contrast stretch and noise reduction (Preprocess), and the
// informational image quality score recorded on results (QualityScore).
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Preprocess re-bases its
// output at (0,0) regardless of the input's bounds.
//
// # Purity
//
// Preprocess and QualityScore never mutate their input. Preprocessing
// operates on a clone, so a caller may hand the same decoded image to any
// number of concurrent pipelines.
//
// # Error Handling
//
// The only preprocessing failure is *InvalidImageError for a zero-dimension
// image. Loading fails with wrapped I/O or decode errors; the pipeline maps
// either case to the sheet's failed state.
package imaging
