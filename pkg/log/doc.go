/*
Package log provides structured logging for the BreezeChat server fabric
using zerolog.

The package wraps zerolog to provide JSON or console structured logging with
component-specific child loggers, a configurable level, and helper functions
for the error taxonomy every service package returns (pkg/errs): DEBUG for
validation rejections, INFO for not-found/conflict outcomes, ERROR for
dependency failures, and a CRITICAL marker for compensation failures that
need operator follow-up.

# Usage

Initializing the logger once at process start:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	regLog := log.WithComponent("registry")
	regLog.Info().Str("service", "user").Msg("lease acquired")

Request-scoped loggers, used by every RPC handler so request_id is echoed
into every log line for cross-service correlation:

	rlog := log.WithRequestID(req.RequestID)
	rlog.Error().Err(err).Msg("GetUserInfo failed")

Critical (compensation failure, operator-visible):

	log.Critical("index restore failed after relational rollback", err)

# Integration points

  - pkg/errs: error kinds map to the level a handler logs at
  - pkg/registry, pkg/discovery: lease/watch lifecycle events
  - pkg/balancer: pick/complete and pool membership churn
  - pkg/storageconsumer: compensation outcomes
  - pkg/metrics: counters are incremented alongside, not instead of, logs
*/
package log
