// cmd/scflow-cellcycle/main.go
package main

import (
	"scflow/internal/appshell"
	"scflow/internal/cellcycleapp"
)

func main() { appshell.Main(cellcycleapp.RunContext) }
