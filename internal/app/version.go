package app

// Заполняются при сборке: -ldflags "-X detection-relay/internal/app.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// ServiceName имя сервиса
const ServiceName = "detection-relay"
