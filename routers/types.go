// Package routers implements usage-aware deployment routing: given a model
// group and a pool of interchangeable deployments, it picks the cheapest
// deployment that can still legally accept one more request under its
// per-minute/hour/day rate limits, with usage counters kept in a shared
// ledger store.
package routers

import "errors"

// ErrNoAvailableDeployment is returned when the pool for a model group is
// empty or every deployment is cooling down. Rate-limit exclusion is
// reported as the distinct *errors.NoEligibleDeploymentError instead.
var ErrNoAvailableDeployment = errors.New("no available deployment for model")
