/*
Package metrics provides Prometheus metrics collection and exposition for
BreezeChat's server tier.

The package registers gauges/counters/histograms covering the pieces of the
fabric worth alerting on: discovered instance counts per pooled service
(ServiceInstancesTotal), client-side balancer picks and busy_level
(BalancerPicksTotal, BalancerBusyLevel), outbound RPC call outcomes and
latency (RPCCallsTotal, RPCCallDuration), broker publish/consume outcomes
(BrokerPublishTotal, BrokerConsumedTotal), storage consumer compensation
counts and handling latency (StorageConsumerCompensationsTotal,
StorageConsumerDuration), per-operation UserService counters
(UserOperationsTotal), and the per-call transmit target count
(TransmitTargetsResolved). Metrics are exposed over
HTTP via Handler for scraping.

Collector polls a *balancer.ServiceManager on a fixed interval and snapshots
each declared service's pool size into ServiceInstancesTotal; callers that
want per-call counters (RPCCallsTotal, BalancerPicksTotal, etc.) increment
them directly at the call site instead, since those are inherently
event-driven rather than poll-driven.

health.go layers a liveness/readiness surface on top of this: components
register themselves healthy/unhealthy via RegisterComponent, and
HealthHandler/ReadyHandler/LivenessHandler expose /health, /ready, and
/live endpoints. coordination, relational, and broker are treated as
critical for readiness — a process isn't ready to serve until its
dependency connections are established.
*/
package metrics
