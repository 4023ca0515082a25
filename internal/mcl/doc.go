// Package mcl implements Monte Carlo localization: a particle filter
// that estimates an agent's pose (x, y, heading) from noisy motion
// commands and vehicle-frame landmark observations against a known map.
//
// The filter cycle has four stages. Init seeds N weighted pose
// hypotheses around an initial estimate. Predict advances every
// particle through a bicycle kinematic model and injects process
// noise. UpdateWeights transforms each observation into the map frame
// per particle, associates it with the nearest landmark, and folds the
// bivariate Gaussian measurement likelihood into the particle weight.
// Resample redraws the population with replacement, proportional to
// weight, using a stochastic wheel.
//
// The filter is synchronous and single-threaded: each stage runs to
// completion on the caller's goroutine, and the particle set is owned
// by that caller. Snapshot accessors return copies so a driver can
// hand state to reporting layers without holding up the cycle.
package mcl
