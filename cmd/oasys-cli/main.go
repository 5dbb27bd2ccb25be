package main

import (
	"context"

	"oasys-backend/cmd/oasys-cli/commands"
	"oasys-backend/lib/telemetry"
)

func main() {
	telemetry.InitSlog(false)
	commands.ExecuteContext(context.Background())
}
