package config

import (
	"strconv"
	"time"
)

type LimitConfig interface {
	// GetLimitPerEmail is the number of attempts one address gets per window.
	GetLimitPerEmail() int
	GetLimitWindow() time.Duration
}

type Limits struct{}

var _ LimitConfig = Limits{}

func (Limits) GetLimitPerEmail() int {
	value, err := strconv.Atoi(GetEnv(limitCountVar, "5"))
	if err != nil || value < 1 {
		return 5
	}
	return value
}

func (Limits) GetLimitWindow() time.Duration {
	return GetDurationEnv(limitWindowVar, time.Minute)
}
