// Package lib provides a Go SDK to run batch worker deployments
// programmatically.
//
// It embeds the same coordinator the wdeploy CLI and HTTP API use, so
// presentation layers can drive deployments and render their progress without
// shelling out to the binary.
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{
//	    APIURL:   "https://dashboard.example.com/api/v1",
//	    APIToken: os.Getenv("DASHBOARD_TOKEN"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	run, err := client.DeployAll(ctx, lib.WorkerFilter{Region: "eu-west"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if run.HasFailures() {
//	    run, err = client.RetryFailed(ctx)
//	}
//
// # Batches
//
// Workers are deployed in batches of [BatchSize]. The workers of a batch are
// deployed concurrently and a batch only starts once every worker of the
// previous one has an outcome. Only one run can be active per client, starting
// another one fails with [ErrRunInProgress].
//
// # Progress
//
// [Client.State] can be polled from another goroutine while a run is active.
// [Run.Outcomes] are in completion order.
//
// # Simulated fleets
//
// Setting [Config].FakeWorkers replaces the dashboard API with an in-memory
// fleet, useful for tests and demos.
//
// # Errors
//
// Errors can be checked with [errors.Is]:
//
//   - [ErrNotFound]: Resource does not exist.
//   - [ErrNotValid]: Invalid input.
//   - [ErrRunInProgress]: A run is already active.
package lib
