// Package wire defines the values that cross the module boundary: log
// records, the invoke result envelope and structured error details.
//
// These types are encoded with whichever codec both sides are configured
// with, so every field must survive both the JSON and the gob codec. Optional
// fields are pointers; absence is preserved as absence.
package wire
