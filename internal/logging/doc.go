// Package logging sets up structured logging for tflmirror.
//
// Sync runs log one JSON record per committed batch, reconcile pass and
// failure. With --debug, or when log.file is configured, records are also
// written to a size-rotated file under ~/.tflmirror/logs/.
package logging
