// Package port defines the core interfaces (ports) of the step executor.
// These interfaces abstract the capabilities the executor depends on (readers, writers, tasklets,
// synchronizers, repeat policies and listeners) so that implementations can be swapped freely.
package port
