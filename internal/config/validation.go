package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edgard/shamebot/internal/errs"
)

// Validate checks struct constraints and cross-field rules that tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errs.NewConfigError("configuration validation failed", err)
	}

	if _, err := time.LoadLocation(c.Scheduler.Location); err != nil {
		return errs.NewConfigError(fmt.Sprintf("invalid scheduler.location %q", c.Scheduler.Location), err)
	}

	return nil
}

// Location returns the parsed scheduler time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PesterUnit converts scheduler.pester_unit to a duration.
func (c *Config) PesterUnit() time.Duration {
	switch c.Scheduler.PesterUnit {
	case "second":
		return time.Second
	case "minute":
		return time.Minute
	default:
		return time.Hour
	}
}
