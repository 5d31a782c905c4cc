// Package arena provides the bounded allocator used for pixel planes.
//
// An Arena hands out Planes of float32 samples. Each request is served from
// the RAM budget when it fits, otherwise from a swap file created in the
// configured directory and memory-mapped read/write. When neither budget can
// hold the request, Acquire fails with errs.ErrOutOfResources.
//
// # Budgets
//
// Both budgets are expressed in bytes and are initialised from the Config on
// the first Acquire. A request of size s is admitted by a budget b only when
// s < b (strictly).
// Release returns the bytes to the budget that served them.
//
// # Swap files
//
// Swap files are named vm<pid>_<counter>.tmp and registered as soon as they
// are created so Cleanup can remove them after an interrupt. Release unmaps
// and deletes the file.
//
// # Thread Safety
//
// Acquire, Release and Cleanup are safe for concurrent use. The data of a
// Plane is not synchronised; its owner decides who may touch it.
package arena
