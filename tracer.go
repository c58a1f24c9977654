package sdspi

// Tracer receives purely observational event names as the engine moves
// through a protocol operation. It is never part of the correctness
// contract — an implementation may no-op it entirely, as the default that
// New installs (and SetTracer(nil) restores) does.
type Tracer func(event string)

func noopTracer(string) {}
