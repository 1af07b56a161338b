// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tphakala/wildalert/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ErrorCategory lets enhanced errors wrapping a ValidationError pick the right category.
func (ve ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryConfiguration
}

// ValidateSettings validates the entire Settings struct and reports every
// problem at once.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}
	collect := func(errs []string) {
		ve.Errors = append(ve.Errors, errs...)
	}

	collect(validateIngestSettings(&settings.Ingest))
	collect(validateNoticeSettings(&settings.Notice))
	collect(validateEventsSettings(&settings.Events))
	collect(validateMQTTSettings(&settings.MQTT))
	collect(validateWebServerSettings(&settings.WebServer))
	collect(validateSecuritySettings(&settings.Security))
	collect(validateSentrySettings(&settings.Sentry))

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateIngestSettings(s *IngestSettings) []string {
	var errs []string

	if s.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("ingest.interval must be positive, got %s", s.Interval))
	}
	if s.Probability < 0 || s.Probability > 1 {
		errs = append(errs, fmt.Sprintf("ingest.probability must be between 0 and 1, got %v", s.Probability))
	}
	if len(s.Species) == 0 {
		errs = append(errs, "ingest.species must list at least one species")
	}
	for _, sp := range s.Species {
		if strings.TrimSpace(sp) == "" {
			errs = append(errs, "ingest.species must not contain empty names")
			break
		}
	}
	if len(s.Cameras) == 0 {
		errs = append(errs, "ingest.cameras must list at least one camera")
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		errs = append(errs, fmt.Sprintf("ingest.latitude must be between -90 and 90, got %v", s.Latitude))
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		errs = append(errs, fmt.Sprintf("ingest.longitude must be between -180 and 180, got %v", s.Longitude))
	}
	if s.Radius < 0 {
		errs = append(errs, fmt.Sprintf("ingest.radius must not be negative, got %v", s.Radius))
	}
	if s.MinConfidence < 0 || s.MaxConfidence > 100 || s.MinConfidence > s.MaxConfidence {
		errs = append(errs, fmt.Sprintf("ingest confidence range [%d,%d] must lie within [0,100]", s.MinConfidence, s.MaxConfidence))
	}

	return errs
}

func validateNoticeSettings(s *NoticeSettings) []string {
	var errs []string
	if s.TTL <= 0 {
		errs = append(errs, fmt.Sprintf("notice.ttl must be positive, got %s", s.TTL))
	}
	if s.RatePerSecond <= 0 {
		errs = append(errs, fmt.Sprintf("notice.ratepersecond must be positive, got %v", s.RatePerSecond))
	}
	if s.Burst < 1 {
		errs = append(errs, fmt.Sprintf("notice.burst must be at least 1, got %d", s.Burst))
	}
	return errs
}

func validateEventsSettings(s *EventsSettings) []string {
	var errs []string
	if s.BufferSize < 1 {
		errs = append(errs, fmt.Sprintf("events.buffersize must be at least 1, got %d", s.BufferSize))
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Sprintf("events.workers must be at least 1, got %d", s.Workers))
	}
	return errs
}

func validateMQTTSettings(s *MQTTSettings) []string {
	if !s.Enabled {
		return nil
	}

	var errs []string
	if s.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	} else if u, err := url.Parse(s.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("mqtt.broker %q is not a valid URL", s.Broker))
	}
	if strings.TrimSpace(s.Topic) == "" {
		errs = append(errs, "mqtt.topic is required when mqtt is enabled")
	}
	if s.QoS < 0 || s.QoS > 2 {
		errs = append(errs, fmt.Sprintf("mqtt.qos must be 0, 1 or 2, got %d", s.QoS))
	}
	return errs
}

func validateWebServerSettings(s *WebServerSettings) []string {
	if !s.Enabled {
		return nil
	}

	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("webserver.port must be between 1 and 65535, got %d", s.Port))
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "webserver.shutdowntimeout must be positive")
	}
	if s.SSEHeartbeat < time.Second {
		errs = append(errs, fmt.Sprintf("webserver.sseheartbeat must be at least 1s, got %s", s.SSEHeartbeat))
	}
	return errs
}

func validateSecuritySettings(s *SecuritySettings) []string {
	var errs []string
	if len(s.SessionSecret) < 32 {
		errs = append(errs, "security.sessionsecret must be at least 32 characters")
	}
	if s.JWTSecret != "" && len(s.JWTSecret) < 32 {
		errs = append(errs, "security.jwtsecret must be at least 32 characters when set")
	}
	if s.SessionMaxAge <= 0 {
		errs = append(errs, "security.sessionmaxage must be positive")
	}
	if s.ClientIdleTTL <= 0 {
		errs = append(errs, "security.clientidlettl must be positive")
	}
	return errs
}

func validateSentrySettings(s *SentrySettings) []string {
	if !s.Enabled {
		return nil
	}
	var errs []string
	if s.DSN == "" {
		errs = append(errs, "sentry.dsn is required when sentry is enabled")
	}
	if s.SampleRate <= 0 || s.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("sentry.samplerate must be in (0,1], got %v", s.SampleRate))
	}
	return errs
}
