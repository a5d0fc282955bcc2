package telegram

import "weatherstuff/pkg/weatherstuff"

const (
	// DriverType is the configured driver type token for the Telegram runtime.
	DriverType = "telegram"
	// DriverPlatform is the neutral platform produced by the Telegram runtime.
	DriverPlatform weatherstuff.Platform = weatherstuff.PlatformTelegram
)
