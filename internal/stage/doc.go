// Package stage runs the generation stages of a build.
//
// A Table lists stages in execution order together with the phase each
// belongs to, its quality gate and whether it is critical. Run drives one
// stage through the validate and repair loop: an initial generate call,
// validation of every candidate, and repair calls carrying fix instructions
// until the gate passes or the attempt budget is spent. When the budget runs
// out the best candidate seen is returned and marked degraded.
package stage
