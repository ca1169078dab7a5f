package amqphook

import amqp "github.com/rabbitmq/amqp091-go"

// Cadence lifecycle event types. Each constant maps to one ext lifecycle
// hook and is used as the routing key of the published message.
const (
	EventJobScheduled    = "cadence.job.scheduled"
	EventJobClaimed      = "cadence.job.claimed"
	EventJobFinished     = "cadence.job.finished"
	EventJobErrored      = "cadence.job.errored"
	EventJobKilled       = "cadence.job.killed"
	EventJobPaused       = "cadence.job.paused"
	EventJobSkipped      = "cadence.job.skipped"
	EventJobCrashed      = "cadence.job.crashed"
	EventCronTicked      = "cadence.cron.ticked"
	EventHeartbeatFailed = "cadence.worker.heartbeat_failed"
	EventWorkerRecovered = "cadence.worker.recovered"
)

// DefaultExchange is the exchange used when WithExchange is not given.
const DefaultExchange = "cadence.events"

// AllEvents returns every event type the extension can publish.
func AllEvents() []string {
	return []string{
		EventJobScheduled,
		EventJobClaimed,
		EventJobFinished,
		EventJobErrored,
		EventJobKilled,
		EventJobPaused,
		EventJobSkipped,
		EventJobCrashed,
		EventCronTicked,
		EventHeartbeatFailed,
		EventWorkerRecovered,
	}
}

// DeclareExchange declares the durable topic exchange events are
// published on. Call it once during startup.
func DeclareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,               // name
		amqp.ExchangeTopic, // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	)
}
