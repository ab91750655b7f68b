package config

import (
	"fmt"
	"strings"

	"roboharbor/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// Validate checks the configuration. It returns a *ConfigurationError whose
// message lists every problem, or nil.
func (c Config) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.Namespace) == "" {
		errs.Add("namespace", "is required")
	}
	if strings.TrimSpace(c.Harbor.ListenAddress) == "" {
		errs.Add("harbor.listenAddress", "is required")
	}
	if !strings.HasPrefix(c.Harbor.Path, "/") {
		errs.Add("harbor.path", "must start with '/'", c.Harbor.Path)
	}
	if strings.TrimSpace(c.Harbor.PublicAddress) == "" {
		errs.Add("harbor.publicAddress", "is required")
	}
	if c.Timeouts.Registration <= 0 {
		errs.Add("timeouts.registration", "must be positive", c.Timeouts.Registration)
	}
	if c.Timeouts.Response <= 0 {
		errs.Add("timeouts.response", "must be positive", c.Timeouts.Response)
	}
	if c.Timeouts.Handshake <= 0 {
		errs.Add("timeouts.handshake", "must be positive", c.Timeouts.Handshake)
	}
	if c.Reconcile.Interval <= 0 {
		errs.Add("reconcile.interval", "must be positive", c.Reconcile.Interval)
	}
	if strings.TrimSpace(c.ValidationImage) == "" {
		errs.Add("validationImage", "is required")
	}

	if err := ValidateOneOf("catalog.driver", c.Catalog.Driver, []string{CatalogMemory, CatalogFile, CatalogPostgres}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	switch c.Catalog.Driver {
	case CatalogFile:
		if c.Catalog.Path == "" {
			errs.Add("catalog.path", "is required for the file catalog")
		}
	case CatalogPostgres:
		if c.Catalog.DSN == "" {
			errs.Add("catalog.dsn", "is required for the postgres catalog (or set DATABASE_URL)")
		}
	}
	for i, img := range c.Catalog.Images {
		if img.Name == "" || img.ContainerReference == "" {
			errs.Add(fmt.Sprintf("catalog.images[%d]", i), "needs name and containerReference")
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs.Add("metrics.path", "must start with '/'", c.Metrics.Path)
	}
	if err := ValidateOneOf("log.format", c.Log.Format, []string{string(logging.FormatText), string(logging.FormatJSON)}); err != nil {
		errs = append(errs, err.(ValidationError))
	}

	if !errs.HasErrors() {
		return nil
	}
	return NewConfigurationError("", "validation", errs.Error(), "run 'roboharbor serve --help' for the available settings")
}
