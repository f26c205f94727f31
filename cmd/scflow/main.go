// cmd/scflow/main.go
package main

import (
	"scflow/internal/appshell"
	"scflow/internal/app"
)

func main() { appshell.Main(app.RunContext) }
