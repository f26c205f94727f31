// cmd/scflow-pbmc/main.go
package main

import (
	"scflow/internal/appshell"
	"scflow/internal/pbmcapp"
)

func main() { appshell.Main(pbmcapp.RunContext) }
