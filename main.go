package main

import (
	"github.com/manifest-network/vaultctl/cmd/vaultctl"
)

func main() {
	vaultctl.Execute()
}
