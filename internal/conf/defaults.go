// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/wildalert/internal/logger"
)

// Sets default values for the configuration.
// Every key needs a default so environment overrides are seen by Unmarshal.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.defaultlevel", logger.DefaultLogLevel)
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.fileoutput.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.fileoutput.path", logger.DefaultLogPath)
	v.SetDefault("logging.fileoutput.level", logger.DefaultLogLevel)

	v.SetDefault("ingest.enabled", true)
	v.SetDefault("ingest.interval", 15*time.Second)
	v.SetDefault("ingest.probability", 0.4)
	v.SetDefault("ingest.species", []string{"Tiger", "Elephant", "Leopard", "Bear"})
	v.SetDefault("ingest.cameras", []string{"cam-001", "cam-002", "cam-003"})
	v.SetDefault("ingest.latitude", 26.8851)
	v.SetDefault("ingest.longitude", 93.7792)
	v.SetDefault("ingest.radius", 0.01)
	v.SetDefault("ingest.location", "Core Zone Section A")
	v.SetDefault("ingest.framepool", []string{})
	v.SetDefault("ingest.minconfidence", 70)
	v.SetDefault("ingest.maxconfidence", 100)
	v.SetDefault("ingest.seed", 0)

	v.SetDefault("notice.ttl", 10*time.Second)
	v.SetDefault("notice.ratepersecond", 2.0)
	v.SetDefault("notice.burst", 5)

	v.SetDefault("events.buffersize", 1000)
	v.SetDefault("events.workers", 2)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "wildalert")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "wildalert/alerts")
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.host", "")
	v.SetDefault("webserver.port", 8080)
	v.SetDefault("webserver.allowedorigins", []string{})
	v.SetDefault("webserver.shutdowntimeout", 10*time.Second)
	v.SetDefault("webserver.sseheartbeat", 30*time.Second)
	v.SetDefault("webserver.metrics", true)

	v.SetDefault("security.sessionsecret", "")
	v.SetDefault("security.sessionmaxage", 12*time.Hour)
	v.SetDefault("security.securecookie", false)
	v.SetDefault("security.jwtsecret", "")
	v.SetDefault("security.clientidlettl", 30*time.Minute)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.samplerate", 1.0)
	v.SetDefault("sentry.debug", false)

	v.SetDefault("seed.demo", true)
}
