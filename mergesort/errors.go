package mergesort

import "github.com/pkg/errors"

// DataConsistencyError marks a chunk file that held fewer (or more
// malformed) entries than its in-memory item count promised — always a bug
// in how the chunk was written or a corrupted spill file, never recoverable
// locally (§7).
type DataConsistencyError struct {
	msg string
}

func (e *DataConsistencyError) Error() string { return e.msg }

func newDataConsistencyError(format string, args ...any) error {
	return &DataConsistencyError{msg: errors.Errorf(format, args...).Error()}
}

// ConfigurationError marks a rejected ExternalMergeSort configuration
// (chunk size/worker product exceeding the memory budget, unwritable temp
// directory). Fatal at construction, per §7.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string { return e.msg }

func newConfigurationError(format string, args ...any) error {
	return &ConfigurationError{msg: errors.Errorf(format, args...).Error()}
}
